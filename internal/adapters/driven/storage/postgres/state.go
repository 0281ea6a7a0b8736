package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tripsync/tripctx/internal/core/domain"
	"github.com/tripsync/tripctx/internal/core/ports/driven"
)

// ==================== Membership Store ====================

type membershipStore struct {
	pool *pgxpool.Pool
}

var _ driven.MembershipStore = (*membershipStore)(nil)

// GetMembership returns the membership row or domain.ErrNotFound.
func (s *membershipStore) GetMembership(ctx context.Context, tripID, userID string) (domain.Membership, error) {
	m := domain.Membership{TripID: tripID, UserID: userID}
	var status string
	err := s.pool.QueryRow(ctx,
		"SELECT status, role FROM trip_memberships WHERE trip_id = $1 AND user_id = $2", tripID, userID,
	).Scan(&status, &m.Role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Membership{}, domain.ErrNotFound
		}
		return domain.Membership{}, fmt.Errorf("getting membership: %w", err)
	}
	m.Status = domain.MembershipStatus(status)
	return m, nil
}

// SetMembership creates or replaces a membership row.
func (s *membershipStore) SetMembership(ctx context.Context, m domain.Membership) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO trip_memberships (trip_id, user_id, status, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (trip_id, user_id) DO UPDATE SET
			status = EXCLUDED.status,
			role = EXCLUDED.role
	`, m.TripID, m.UserID, string(m.Status), m.Role)
	if err != nil {
		return fmt.Errorf("saving membership: %w", err)
	}
	return nil
}

// ListMembers returns a trip's membership rows ordered by user.
func (s *membershipStore) ListMembers(ctx context.Context, tripID string) ([]domain.Membership, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT user_id, status, role FROM trip_memberships WHERE trip_id = $1 ORDER BY user_id", tripID)
	if err != nil {
		return nil, fmt.Errorf("querying memberships: %w", err)
	}
	defer rows.Close()

	var members []domain.Membership
	for rows.Next() {
		m := domain.Membership{TripID: tripID}
		var status string
		if err := rows.Scan(&m.UserID, &status, &m.Role); err != nil {
			return nil, fmt.Errorf("scanning membership: %w", err)
		}
		m.Status = domain.MembershipStatus(status)
		members = append(members, m)
	}
	return members, rows.Err()
}

// ==================== Usage Store ====================

type usageStore struct {
	pool *pgxpool.Pool
}

var _ driven.UsageStore = (*usageStore)(nil)

// IncrementIfBelow increments the counter only while it is below limit,
// in a single statement.
func (s *usageStore) IncrementIfBelow(ctx context.Context, key domain.UsageKey, limit int) (int, bool, error) {
	if limit <= 0 {
		count, err := s.Count(ctx, key)
		return count, false, err
	}

	var count int
	err := s.pool.QueryRow(ctx, `
		INSERT INTO usage_counters (user_id, trip_id, day, count)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (user_id, trip_id, day) DO UPDATE SET count = usage_counters.count + 1
		WHERE usage_counters.count < $4
		RETURNING count
	`, key.UserID, key.TripID, key.Date, limit).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		count, err := s.Count(ctx, key)
		return count, false, err
	}
	if err != nil {
		return 0, false, fmt.Errorf("incrementing usage: %w", err)
	}
	return count, true, nil
}

// Increment increments the counter unconditionally.
func (s *usageStore) Increment(ctx context.Context, key domain.UsageKey) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		INSERT INTO usage_counters (user_id, trip_id, day, count)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (user_id, trip_id, day) DO UPDATE SET count = usage_counters.count + 1
		RETURNING count
	`, key.UserID, key.TripID, key.Date).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("incrementing usage: %w", err)
	}
	return count, nil
}

// Count returns the counter value, zero when absent.
func (s *usageStore) Count(ctx context.Context, key domain.UsageKey) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		"SELECT count FROM usage_counters WHERE user_id = $1 AND trip_id = $2 AND day = $3",
		key.UserID, key.TripID, key.Date,
	).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading usage: %w", err)
	}
	return count, nil
}
