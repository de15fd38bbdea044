package tasks

import (
	"context"
	"time"

	"github.com/gotrs-io/mailbridge/internal/runner"
	"github.com/gotrs-io/mailbridge/internal/scanner"
)

// ScanTask drives the inbox scan cycle.
type ScanTask struct {
	scanner  *scanner.Scanner
	interval time.Duration
	timeout  time.Duration
}

// NewScanTask builds the scan task. The timeout bounds one whole cycle,
// including pool drain.
func NewScanTask(s *scanner.Scanner, interval, timeout time.Duration) runner.Task {
	return &ScanTask{scanner: s, interval: interval, timeout: timeout}
}

// Name returns the task name
func (t *ScanTask) Name() string {
	return "inbox-scan"
}

// Schedule returns the fixed-rate schedule derived from configuration
func (t *ScanTask) Schedule() string {
	return runner.Every(t.interval)
}

// Timeout returns the per-execution deadline
func (t *ScanTask) Timeout() time.Duration {
	return t.timeout
}

// Run executes one scan cycle
func (t *ScanTask) Run(ctx context.Context) error {
	return t.scanner.Scan(ctx)
}
