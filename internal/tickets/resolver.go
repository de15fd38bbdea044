// Package tickets resolves thread ids to ticket ids with a time-invalidated
// cache so bursts of replies in one thread cost a single backend round trip.
package tickets

import (
	"context"
	"errors"
	"log"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/gotrs-io/mailbridge/internal/backend"
)

type ticketLookup interface {
	TicketByThread(ctx context.Context, threadID string) (string, error)
}

type cacheEntry struct {
	ticketID string
	found    bool
}

// Resolver maps thread ids to ticket ids. Negative results are cached too,
// so repeated replies to an unticketed thread do not hammer the backend.
// The cache is cleared wholesale on a schedule instead of tracking
// per-entry expiry.
type Resolver struct {
	mu      sync.RWMutex
	cache   map[string]cacheEntry
	group   singleflight.Group
	backend ticketLookup
	logger  *log.Logger
}

// ResolverOption customizes the Resolver.
type ResolverOption func(*Resolver)

// WithResolverLogger overrides the logger used for diagnostics.
func WithResolverLogger(logger *log.Logger) ResolverOption {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewResolver builds a resolver on top of the backend client.
func NewResolver(b ticketLookup, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		cache:   make(map[string]cacheEntry),
		backend: b,
		logger:  log.New(log.Writer(), "[TICKETS] ", log.LstdFlags),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Resolve returns the ticket id for a thread. The second return value is
// false when no ticket exists for the thread; that outcome is cached.
// Backend errors other than not-found propagate and are never cached.
func (r *Resolver) Resolve(ctx context.Context, threadID string) (string, bool, error) {
	r.mu.RLock()
	entry, ok := r.cache[threadID]
	r.mu.RUnlock()
	if ok {
		return entry.ticketID, entry.found, nil
	}

	// Concurrent misses for the same thread share one lookup.
	v, err, _ := r.group.Do(threadID, func() (any, error) {
		ticketID, err := r.backend.TicketByThread(ctx, threadID)
		if errors.Is(err, backend.ErrNotFound) {
			r.logger.Printf("no ticket found for thread %s", threadID)
			return r.store(threadID, cacheEntry{}), nil
		}
		if err != nil {
			return cacheEntry{}, err
		}
		return r.store(threadID, cacheEntry{ticketID: ticketID, found: true}), nil
	})
	if err != nil {
		return "", false, err
	}
	entry = v.(cacheEntry)
	return entry.ticketID, entry.found, nil
}

func (r *Resolver) store(threadID string, entry cacheEntry) cacheEntry {
	r.mu.Lock()
	r.cache[threadID] = entry
	r.mu.Unlock()
	return entry
}

// Invalidate drops the entire cache, forcing fresh lookups afterwards.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	size := len(r.cache)
	r.cache = make(map[string]cacheEntry)
	r.mu.Unlock()
	if size > 0 {
		r.logger.Printf("cleared %d cached thread lookups", size)
	}
}

// Size returns the number of cached entries.
func (r *Resolver) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}
