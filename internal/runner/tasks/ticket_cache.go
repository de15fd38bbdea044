package tasks

import (
	"context"
	"time"

	"github.com/gotrs-io/mailbridge/internal/runner"
	"github.com/gotrs-io/mailbridge/internal/tickets"
)

// TicketCacheTask clears the thread-to-ticket cache wholesale, bounding
// staleness without per-entry expiry bookkeeping.
type TicketCacheTask struct {
	resolver *tickets.Resolver
	interval time.Duration
}

// NewTicketCacheTask builds the cache invalidation task.
func NewTicketCacheTask(resolver *tickets.Resolver, interval time.Duration) runner.Task {
	return &TicketCacheTask{resolver: resolver, interval: interval}
}

// Name returns the task name
func (t *TicketCacheTask) Name() string {
	return "ticket-cache-invalidate"
}

// Schedule returns the fixed-rate schedule derived from configuration
func (t *TicketCacheTask) Schedule() string {
	return runner.Every(t.interval)
}

// Timeout returns the per-execution deadline
func (t *TicketCacheTask) Timeout() time.Duration {
	return 10 * time.Second
}

// Run clears the cache
func (t *TicketCacheTask) Run(ctx context.Context) error {
	t.resolver.Invalidate()
	return nil
}
