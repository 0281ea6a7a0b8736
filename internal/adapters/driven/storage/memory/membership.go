package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/tripsync/tripctx/internal/core/domain"
	"github.com/tripsync/tripctx/internal/core/ports/driven"
)

// Ensure MembershipStore implements the interface.
var _ driven.MembershipStore = (*MembershipStore)(nil)

type membershipKey struct {
	tripID string
	userID string
}

// MembershipStore is an in-memory membership relation.
type MembershipStore struct {
	mu   sync.RWMutex
	rows map[membershipKey]domain.Membership
}

// NewMembershipStore creates an empty membership store.
func NewMembershipStore() *MembershipStore {
	return &MembershipStore{rows: make(map[membershipKey]domain.Membership)}
}

// GetMembership returns the row for (tripID, userID) or domain.ErrNotFound.
func (s *MembershipStore) GetMembership(_ context.Context, tripID, userID string) (domain.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.rows[membershipKey{tripID, userID}]
	if !ok {
		return domain.Membership{}, domain.ErrNotFound
	}
	return m, nil
}

// SetMembership creates or replaces a row.
func (s *MembershipStore) SetMembership(_ context.Context, m domain.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[membershipKey{m.TripID, m.UserID}] = m
	return nil
}

// ListMembers returns a trip's rows ordered by user.
func (s *MembershipStore) ListMembers(_ context.Context, tripID string) ([]domain.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Membership
	for k, m := range s.rows {
		if k.tripID == tripID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}
