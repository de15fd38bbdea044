package tasks

import (
	"context"
	"time"

	"github.com/gotrs-io/mailbridge/internal/dedup"
	"github.com/gotrs-io/mailbridge/internal/metrics"
	"github.com/gotrs-io/mailbridge/internal/runner"
)

// DedupRefreshTask re-unions the backend's authoritative processed-id state
// into the local set, absorbing changes made outside the bridge. It runs on
// a slower cadence than the scan.
type DedupRefreshTask struct {
	store    *dedup.Store
	interval time.Duration
}

// NewDedupRefreshTask builds the refresh task.
func NewDedupRefreshTask(store *dedup.Store, interval time.Duration) runner.Task {
	return &DedupRefreshTask{store: store, interval: interval}
}

// Name returns the task name
func (t *DedupRefreshTask) Name() string {
	return "dedup-refresh"
}

// Schedule returns the fixed-rate schedule derived from configuration
func (t *DedupRefreshTask) Schedule() string {
	return runner.Every(t.interval)
}

// Timeout returns the per-execution deadline
func (t *DedupRefreshTask) Timeout() time.Duration {
	return 2 * time.Minute
}

// Run refreshes the processed-id set from the backend
func (t *DedupRefreshTask) Run(ctx context.Context) error {
	err := t.store.Refresh(ctx)
	metrics.ProcessedSetSize.Set(float64(t.store.Len()))
	return err
}
