// Package scanner orchestrates the ingestion pipeline: it polls the inbox,
// filters out already-processed messages, and fans the rest out to a
// bounded worker pool for per-message processing.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/gotrs-io/mailbridge/internal/metrics"
)

type mailboxLister interface {
	ListInboxMessageIDs(ctx context.Context) ([]string, error)
	Reauthorize(ctx context.Context) error
}

// Scanner drives one scan cycle at a time. It owns no long-lived worker
// state; each cycle acquires a fresh pool and drains it before returning,
// so partial-cycle failures cannot leak tasks into the next cycle.
type Scanner struct {
	mailbox   mailboxLister
	processor *Processor
	processed processedSet
	logger    *log.Logger

	workers      int
	drainTimeout time.Duration
	isAuthError  func(error) bool
}

// ScannerOption customizes the Scanner.
type ScannerOption func(*Scanner)

// WithWorkers sets the worker pool size per cycle.
func WithWorkers(workers int) ScannerOption {
	return func(s *Scanner) {
		if workers > 0 {
			s.workers = workers
		}
	}
}

// WithDrainTimeout sets the grace period for pool drain at cycle end.
func WithDrainTimeout(timeout time.Duration) ScannerOption {
	return func(s *Scanner) {
		if timeout > 0 {
			s.drainTimeout = timeout
		}
	}
}

// WithScannerLogger overrides the logger used for diagnostics.
func WithScannerLogger(logger *log.Logger) ScannerOption {
	return func(s *Scanner) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAuthErrorCheck overrides the predicate that recognizes credential
// expiry in mailbox errors.
func WithAuthErrorCheck(fn func(error) bool) ScannerOption {
	return func(s *Scanner) {
		if fn != nil {
			s.isAuthError = fn
		}
	}
}

// NewScanner wires a scanner over the mailbox client and the per-message
// processor.
func NewScanner(mailbox mailboxLister, processor *Processor, processed processedSet, opts ...ScannerOption) *Scanner {
	s := &Scanner{
		mailbox:      mailbox,
		processor:    processor,
		processed:    processed,
		logger:       log.New(log.Writer(), "[SCANNER] ", log.LstdFlags),
		workers:      3,
		drainTimeout: 60 * time.Second,
		isAuthError:  func(error) bool { return false },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Scan runs one cycle: list ids, reverse them so older messages become
// tickets before newer ones, submit every locally-unknown id to the pool,
// then drain. On credential expiry it reauthorizes and defers the rest of
// the cycle to the next tick; any other listing error aborts the cycle and
// the interval is the retry mechanism.
func (s *Scanner) Scan(ctx context.Context) error {
	ids, err := s.mailbox.ListInboxMessageIDs(ctx)
	if err != nil {
		if s.isAuthError(err) {
			s.logger.Printf("mailbox credentials expired, reauthorizing: %v", err)
			if rerr := s.mailbox.Reauthorize(ctx); rerr != nil {
				metrics.ScanCycles.WithLabelValues("auth_failure").Inc()
				return fmt.Errorf("reauthorize mailbox: %w", rerr)
			}
			metrics.ScanCycles.WithLabelValues("deferred").Inc()
			return nil
		}
		metrics.ScanCycles.WithLabelValues("list_failure").Inc()
		return fmt.Errorf("list inbox messages: %w", err)
	}
	if len(ids) == 0 {
		metrics.ScanCycles.WithLabelValues("empty").Inc()
		return nil
	}

	// The provider lists newest first; reverse so ticket creation order
	// approximates arrival order.
	reversed := make([]string, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		reversed = append(reversed, ids[i])
	}

	cycle := uuid.NewString()[:8]
	pool := NewPool(ctx, s.workers)
	submitted := 0
	for _, id := range reversed {
		if s.processed.Contains(id) {
			metrics.DedupSkips.WithLabelValues("local").Inc()
			continue
		}
		id := id
		pool.Submit(func(taskCtx context.Context) {
			s.processor.Process(taskCtx, id)
		})
		submitted++
	}

	err = pool.Drain(s.drainTimeout)
	if errors.Is(err, ErrDrainTimeout) {
		s.logger.Printf("cycle %s: force-cancelled tasks still running after %s", cycle, s.drainTimeout)
		metrics.ScanCycles.WithLabelValues("drain_timeout").Inc()
		return nil
	}
	if submitted > 0 {
		s.logger.Printf("cycle %s: submitted %d of %d listed messages", cycle, submitted, len(ids))
	}
	metrics.ScanCycles.WithLabelValues("ok").Inc()
	return nil
}
