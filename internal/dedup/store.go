// Package dedup tracks which message ids have already been forwarded to the
// ticketing backend. The set lives in memory only; it is rebuilt from the
// backend on startup and periodically re-unioned with the backend's state.
package dedup

import (
	"context"
	"log"
	"sync"
	"time"
)

type backendLister interface {
	ProcessedEmailIDs(ctx context.Context) ([]string, error)
	ProcessedReplyIDs(ctx context.Context) ([]string, error)
}

// Store is the shared processed-id set. All methods are safe for concurrent
// use.
type Store struct {
	mu      sync.RWMutex
	ids     map[string]struct{}
	backend backendLister
	logger  *log.Logger

	bootstrapAttempts int
	bootstrapDelay    time.Duration
}

// StoreOption customizes the Store.
type StoreOption func(*Store)

// WithBootstrapAttempts sets how often the bootstrap load is retried while
// the result stays empty.
func WithBootstrapAttempts(attempts int) StoreOption {
	return func(s *Store) {
		if attempts > 0 {
			s.bootstrapAttempts = attempts
		}
	}
}

// WithBootstrapDelay sets the pause between bootstrap attempts.
func WithBootstrapDelay(delay time.Duration) StoreOption {
	return func(s *Store) {
		if delay > 0 {
			s.bootstrapDelay = delay
		}
	}
}

// WithStoreLogger overrides the logger used for diagnostics.
func WithStoreLogger(logger *log.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore builds an empty store backed by the given backend client.
func NewStore(b backendLister, opts ...StoreOption) *Store {
	s := &Store{
		ids:               make(map[string]struct{}),
		backend:           b,
		logger:            log.New(log.Writer(), "[DEDUP] ", log.LstdFlags),
		bootstrapAttempts: 3,
		bootstrapDelay:    5 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Bootstrap loads the authoritative processed-id set from the backend. A
// failed fetch and a successfully fetched empty set are both retried, but
// they are distinct conditions: an error means the backend was unreachable,
// an empty result is merely suspicious since a brand-new backend is also
// legitimately empty. After the attempts are exhausted the store proceeds
// with whatever was loaded, accepting the risk of reprocessing.
func (s *Store) Bootstrap(ctx context.Context) {
	for attempt := 1; attempt <= s.bootstrapAttempts; attempt++ {
		added, err := s.load(ctx)
		switch {
		case err != nil:
			s.logger.Printf("bootstrap attempt %d/%d failed: %v", attempt, s.bootstrapAttempts, err)
		case s.Len() == 0:
			s.logger.Printf("bootstrap attempt %d/%d returned an empty set, retrying in case the fetch silently failed", attempt, s.bootstrapAttempts)
		default:
			s.logger.Printf("bootstrap loaded %d processed ids", added)
			return
		}
		if attempt < s.bootstrapAttempts {
			select {
			case <-time.After(s.bootstrapDelay):
			case <-ctx.Done():
				s.logger.Printf("bootstrap cancelled: %v", ctx.Err())
				return
			}
		}
	}
	s.logger.Printf("bootstrap exhausted retries, proceeding with %d processed ids", s.Len())
}

// Refresh re-fetches the backend's processed-id state and unions it into
// the local set. It only ever adds entries.
func (s *Store) Refresh(ctx context.Context) error {
	added, err := s.load(ctx)
	if err != nil {
		return err
	}
	if added > 0 {
		s.logger.Printf("refresh added %d processed ids (total %d)", added, s.Len())
	}
	return nil
}

func (s *Store) load(ctx context.Context) (int, error) {
	emailIDs, err := s.backend.ProcessedEmailIDs(ctx)
	if err != nil {
		return 0, err
	}
	replyIDs, err := s.backend.ProcessedReplyIDs(ctx)
	if err != nil {
		// Keep what the first fetch produced; the union is append-only.
		s.add(emailIDs)
		return 0, err
	}
	return s.add(emailIDs) + s.add(replyIDs), nil
}

func (s *Store) add(ids []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := s.ids[id]; !ok {
			s.ids[id] = struct{}{}
			added++
		}
	}
	return added
}

// Contains reports whether the id is known to be processed.
func (s *Store) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

// MarkProcessed records a successfully dispatched message id.
func (s *Store) MarkProcessed(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[id] = struct{}{}
}

// Len returns the current size of the set.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}
