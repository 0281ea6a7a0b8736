package driving

import (
	"context"
	"time"

	"github.com/tripsync/tripctx/internal/core/domain"
)

// RetrieverService ranks a trip's chunks against a query.
type RetrieverService interface {
	// Retrieve returns at most k chunks ordered by fused score.
	// Non-members get domain.ErrAccessDenied. A trip without ready
	// documents yields an empty list.
	Retrieve(ctx context.Context, tripID, callerID, query string, k int) ([]domain.RetrievedChunk, error)
}

// AggregatorService builds the structured trip snapshot.
type AggregatorService interface {
	// Aggregate fetches every structured source concurrently. Failed sources
	// are reported as omitted sections.
	Aggregate(ctx context.Context, tripID, callerID string) (*domain.AggregateRecord, error)
}

// ContextCache serves aggregate records with per-key coalescing.
type ContextCache interface {
	// GetOrCompute returns a fresh cached record or aggregates a new one.
	GetOrCompute(ctx context.Context, tripID, callerID string, ttl time.Duration) (*domain.AggregateRecord, error)

	// Invalidate drops the cached record for (tripID, userID).
	Invalidate(ctx context.Context, tripID, userID string) error

	// Close refuses new aggregations and waits for in-flight ones to finish
	// writing the cache, or for ctx to end.
	Close(ctx context.Context) error
}

// UsageLimiter enforces daily per-trip query quotas.
type UsageLimiter interface {
	// CheckAndIncrement atomically admits or rejects one query.
	CheckAndIncrement(ctx context.Context, userID, tripID string, tier domain.Tier) (domain.UsageDecision, error)

	// Usage reports today's usage without incrementing.
	Usage(ctx context.Context, userID, tripID string, tier domain.Tier) (domain.UsageDecision, error)
}

// ContextService is the retrieval query call consumed by the assistant.
type ContextService interface {
	// BuildPrompt produces the bounded prompt for one question.
	BuildPrompt(ctx context.Context, req domain.QueryRequest) (*domain.QueryResult, error)
}

// MembershipService manages local membership rows.
type MembershipService interface {
	Set(ctx context.Context, m domain.Membership) error
	List(ctx context.Context, tripID string) ([]domain.Membership, error)
}
