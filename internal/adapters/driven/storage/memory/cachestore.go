package memory

import (
	"context"
	"sync"

	"github.com/tripsync/tripctx/internal/core/domain"
	"github.com/tripsync/tripctx/internal/core/ports/driven"
)

// Ensure ContextCacheStore implements the interface.
var _ driven.ContextCacheStore = (*ContextCacheStore)(nil)

// ContextCacheStore keeps cache entries in a map. Entries are stored as
// immutable pointers so Put is an atomic swap.
type ContextCacheStore struct {
	mu      sync.RWMutex
	entries map[domain.CacheKey]*domain.ContextCacheEntry
}

// NewContextCacheStore creates an empty cache store.
func NewContextCacheStore() *ContextCacheStore {
	return &ContextCacheStore{entries: make(map[domain.CacheKey]*domain.ContextCacheEntry)}
}

// Get returns the entry for key, expired or not.
func (s *ContextCacheStore) Get(_ context.Context, key domain.CacheKey) (*domain.ContextCacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

// Put stores or replaces the entry for its key.
func (s *ContextCacheStore) Put(_ context.Context, entry *domain.ContextCacheEntry) error {
	cp := *entry
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Key] = &cp
	return nil
}

// Delete removes the entry for key.
func (s *ContextCacheStore) Delete(_ context.Context, key domain.CacheKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Len returns the number of entries.
func (s *ContextCacheStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
