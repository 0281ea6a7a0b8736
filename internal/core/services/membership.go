package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/tripsync/tripctx/internal/core/domain"
	"github.com/tripsync/tripctx/internal/core/ports/driven"
	"github.com/tripsync/tripctx/internal/core/ports/driving"
)

// Ensure MembershipService implements the interface.
var _ driving.MembershipService = (*MembershipService)(nil)

// MembershipService manages membership rows in local deployments where this
// engine owns a copy of the membership relation.
type MembershipService struct {
	store driven.MembershipStore
	cache driving.ContextCache
}

// NewMembershipService creates a new membership service. cache may be nil.
func NewMembershipService(store driven.MembershipStore, cache driving.ContextCache) *MembershipService {
	return &MembershipService{store: store, cache: cache}
}

// Set creates or replaces a membership row. Any cached record for the
// member is dropped so a demotion takes effect on the next query.
func (s *MembershipService) Set(ctx context.Context, m domain.Membership) error {
	if strings.TrimSpace(m.TripID) == "" || strings.TrimSpace(m.UserID) == "" {
		return fmt.Errorf("%w: trip and user are required", domain.ErrInvalidInput)
	}
	if !m.Status.IsValid() {
		return fmt.Errorf("%w: unknown membership status %q", domain.ErrInvalidInput, m.Status)
	}
	if err := s.store.SetMembership(ctx, m); err != nil {
		return fmt.Errorf("set membership: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, m.TripID, m.UserID); err != nil {
			return err
		}
	}
	return nil
}

// List returns a trip's membership rows.
func (s *MembershipService) List(ctx context.Context, tripID string) ([]domain.Membership, error) {
	members, err := s.store.ListMembers(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}
