package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const defaultScanWindow = 24 * time.Hour

// RiskScanner runs the detectors over recent sales of one business.
type RiskScanner interface {
	ScanRecentSales(ctx context.Context, businessID int64, since time.Time) (int, error)
}

// BusinessLister enumerates tenants for fan-out jobs.
type BusinessLister interface {
	ListBusinessIDs(ctx context.Context) ([]int64, error)
}

// NewRiskScanHandler builds the asynq handler for TaskRiskScanSales. A failing
// business does not abort the sweep; the error is logged and the task
// succeeds so the schedule keeps its cadence.
func NewRiskScanHandler(scanner RiskScanner, businesses BusinessLister, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload RiskScanPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		window := defaultScanWindow
		if payload.WindowMinutes > 0 {
			window = time.Duration(payload.WindowMinutes) * time.Minute
		}
		since := time.Now().Add(-window)

		ids := []int64{payload.BusinessID}
		if payload.BusinessID == 0 {
			var err error
			ids, err = businesses.ListBusinessIDs(ctx)
			if err != nil {
				return err
			}
		}
		for _, id := range ids {
			n, err := scanner.ScanRecentSales(ctx, id, since)
			if err != nil {
				logger.Error("risk scan failed", "business_id", id, "error", err)
				continue
			}
			if n > 0 {
				logger.Info("risk scan raised alerts", "business_id", id, "alerts", n)
			}
		}
		return nil
	}
}
