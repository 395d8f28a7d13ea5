package jobs

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type stubScanner struct {
	scanned []int64
	err     error
}

func (s *stubScanner) ScanRecentSales(_ context.Context, businessID int64, _ time.Time) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.scanned = append(s.scanned, businessID)
	return 1, nil
}

type stubLister struct {
	ids []int64
}

func (s *stubLister) ListBusinessIDs(_ context.Context) ([]int64, error) {
	return s.ids, nil
}

type stubReconciler struct {
	pollAfter    time.Duration
	timeoutAfter time.Duration
	calls        int
}

func (s *stubReconciler) Reconcile(_ context.Context, pollAfter, timeoutAfter time.Duration) (int, error) {
	s.calls++
	s.pollAfter = pollAfter
	s.timeoutAfter = timeoutAfter
	return 2, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestRiskScanHandlerFansOutAcrossBusinesses(t *testing.T) {
	scanner := &stubScanner{}
	handler := NewRiskScanHandler(scanner, &stubLister{ids: []int64{1, 2, 3}}, discardLogger())

	task, err := NewRiskScanTask(RiskScanPayload{})
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), task))
	require.Equal(t, []int64{1, 2, 3}, scanner.scanned)
}

func TestRiskScanHandlerSingleBusiness(t *testing.T) {
	scanner := &stubScanner{}
	handler := NewRiskScanHandler(scanner, &stubLister{ids: []int64{1, 2}}, discardLogger())

	task, err := NewRiskScanTask(RiskScanPayload{BusinessID: 2, WindowMinutes: 60})
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), task))
	require.Equal(t, []int64{2}, scanner.scanned)
}

func TestRiskScanHandlerSkipsRetryOnBadPayload(t *testing.T) {
	handler := NewRiskScanHandler(&stubScanner{}, &stubLister{}, discardLogger())
	err := handler(context.Background(), asynq.NewTask(TaskRiskScanSales, []byte("{not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestMomoReconcileHandlerUsesPayloadHorizons(t *testing.T) {
	rec := &stubReconciler{}
	handler := NewMomoReconcileHandler(rec, discardLogger())

	task, err := NewMomoReconcileTask(MomoReconcilePayload{PollAfterMinutes: 5, TimeoutAfterMinutes: 45})
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), task))
	require.Equal(t, 1, rec.calls)
	require.Equal(t, 5*time.Minute, rec.pollAfter)
	require.Equal(t, 45*time.Minute, rec.timeoutAfter)
}

func TestMomoReconcileHandlerDefaults(t *testing.T) {
	rec := &stubReconciler{}
	handler := NewMomoReconcileHandler(rec, discardLogger())

	task, err := NewMomoReconcileTask(MomoReconcilePayload{})
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), task))
	require.Equal(t, defaultPollAfter, rec.pollAfter)
	require.Equal(t, defaultTimeoutAfter, rec.timeoutAfter)
}
