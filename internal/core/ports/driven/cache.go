package driven

import (
	"context"

	"github.com/tripsync/tripctx/internal/core/domain"
)

// ContextCacheStore holds aggregate record cache entries.
// Put replaces an entry atomically; readers never observe a partial write.
type ContextCacheStore interface {
	// Get returns the entry for key, expired or not.
	// Returns domain.ErrNotFound if there is none.
	Get(ctx context.Context, key domain.CacheKey) (*domain.ContextCacheEntry, error)

	// Put stores or replaces the entry for its key.
	Put(ctx context.Context, entry *domain.ContextCacheEntry) error

	// Delete removes the entry for key. Missing keys are not an error.
	Delete(ctx context.Context, key domain.CacheKey) error
}
