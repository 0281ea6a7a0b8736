package driven

import (
	"context"

	"github.com/tripsync/tripctx/internal/core/domain"
)

// UsageStore holds per-(user, trip, day) query counters.
type UsageStore interface {
	// IncrementIfBelow increments the counter only if it is below limit,
	// as one atomic operation. It returns the counter value after the call
	// and whether the increment happened.
	IncrementIfBelow(ctx context.Context, key domain.UsageKey, limit int) (count int, ok bool, err error)

	// Increment increments the counter unconditionally.
	Increment(ctx context.Context, key domain.UsageKey) (int, error)

	// Count returns the current counter value, zero if absent.
	Count(ctx context.Context, key domain.UsageKey) (int, error)
}
