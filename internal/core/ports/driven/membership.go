package driven

import (
	"context"

	"github.com/tripsync/tripctx/internal/core/domain"
)

// MembershipOracle answers trip membership lookups.
// It is the single authorisation primitive of the engine.
type MembershipOracle interface {
	// GetMembership returns the membership row for (tripID, userID).
	// Returns domain.ErrNotFound if no row exists.
	GetMembership(ctx context.Context, tripID, userID string) (domain.Membership, error)
}

// MembershipStore is a writable oracle used by local deployments and tests.
type MembershipStore interface {
	MembershipOracle

	// SetMembership creates or replaces a membership row.
	SetMembership(ctx context.Context, m domain.Membership) error

	// ListMembers returns all membership rows of a trip ordered by user.
	ListMembers(ctx context.Context, tripID string) ([]domain.Membership, error)
}
