package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	defaultPollAfter    = 2 * time.Minute
	defaultTimeoutAfter = 30 * time.Minute
)

// Reconciler settles stale pending collections against the provider.
type Reconciler interface {
	Reconcile(ctx context.Context, pollAfter, timeoutAfter time.Duration) (int, error)
}

// NewMomoReconcileHandler builds the asynq handler for TaskMomoReconcile.
func NewMomoReconcileHandler(reconciler Reconciler, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload MomoReconcilePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		pollAfter := defaultPollAfter
		if payload.PollAfterMinutes > 0 {
			pollAfter = time.Duration(payload.PollAfterMinutes) * time.Minute
		}
		timeoutAfter := defaultTimeoutAfter
		if payload.TimeoutAfterMinutes > 0 {
			timeoutAfter = time.Duration(payload.TimeoutAfterMinutes) * time.Minute
		}
		n, err := reconciler.Reconcile(ctx, pollAfter, timeoutAfter)
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Info("momo reconcile settled collections", "count", n)
		}
		return nil
	}
}
