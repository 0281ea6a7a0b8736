package memory

import (
	"context"
	"sync"

	"github.com/tripsync/tripctx/internal/core/domain"
	"github.com/tripsync/tripctx/internal/core/ports/driven"
)

// Ensure UsageStore implements the interface.
var _ driven.UsageStore = (*UsageStore)(nil)

// UsageStore keeps usage counters in a map. Old days are never read again;
// a process restart clears them.
type UsageStore struct {
	mu     sync.Mutex
	counts map[domain.UsageKey]int
}

// NewUsageStore creates an empty usage store.
func NewUsageStore() *UsageStore {
	return &UsageStore{counts: make(map[domain.UsageKey]int)}
}

// IncrementIfBelow increments the counter if it is below limit.
func (s *UsageStore) IncrementIfBelow(_ context.Context, key domain.UsageKey, limit int) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.counts[key]
	if n >= limit {
		return n, false, nil
	}
	n++
	s.counts[key] = n
	return n, true, nil
}

// Increment increments the counter unconditionally.
func (s *UsageStore) Increment(_ context.Context, key domain.UsageKey) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[key]++
	return s.counts[key], nil
}

// Count returns the counter value.
func (s *UsageStore) Count(_ context.Context, key domain.UsageKey) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[key], nil
}
