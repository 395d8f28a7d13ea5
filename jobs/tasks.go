// Package jobs holds the asynq task types and worker plumbing for the
// background side of the commerce core: periodic risk scans over recent sales
// and reconciliation of stale mobile-money collections.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRiskScanSales re-runs the risk detectors over recent sales.
	TaskRiskScanSales = "risk:scan_sales"
	// TaskMomoReconcile polls stale PENDING collections and times them out.
	TaskMomoReconcile = "momo:reconcile"
)

// RiskScanPayload scopes a detector sweep. BusinessID zero means every
// configured business; WindowMinutes bounds how far back the sweep looks.
type RiskScanPayload struct {
	BusinessID    int64 `json:"business_id"`
	WindowMinutes int64 `json:"window_minutes"`
}

// NewRiskScanTask constructs a risk sweep task.
func NewRiskScanTask(payload RiskScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRiskScanSales, data), nil
}

// MomoReconcilePayload bounds the reconcile pass. Collections pending longer
// than PollAfterMinutes get a provider status check; those pending longer than
// TimeoutAfterMinutes are forced to TIMEOUT if the provider stays silent.
type MomoReconcilePayload struct {
	PollAfterMinutes    int64 `json:"poll_after_minutes"`
	TimeoutAfterMinutes int64 `json:"timeout_after_minutes"`
}

// NewMomoReconcileTask constructs a reconcile task.
func NewMomoReconcileTask(payload MomoReconcilePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMomoReconcile, data), nil
}
