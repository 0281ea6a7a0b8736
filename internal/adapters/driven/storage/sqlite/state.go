package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tripsync/tripctx/internal/core/domain"
	"github.com/tripsync/tripctx/internal/core/ports/driven"
)

// ==================== Membership Store ====================

type membershipStore struct {
	store *Store
}

var _ driven.MembershipStore = (*membershipStore)(nil)

// GetMembership returns the membership row or domain.ErrNotFound.
func (s *membershipStore) GetMembership(ctx context.Context, tripID, userID string) (domain.Membership, error) {
	m := domain.Membership{TripID: tripID, UserID: userID}
	var status string
	err := s.store.db.QueryRowContext(ctx,
		"SELECT status, role FROM memberships WHERE trip_id = ? AND user_id = ?", tripID, userID,
	).Scan(&status, &m.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Membership{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Membership{}, fmt.Errorf("getting membership: %w", err)
	}
	m.Status = domain.MembershipStatus(status)
	return m, nil
}

// SetMembership creates or replaces a membership row.
func (s *membershipStore) SetMembership(ctx context.Context, m domain.Membership) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO memberships (trip_id, user_id, status, role)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(trip_id, user_id) DO UPDATE SET
			status = excluded.status,
			role = excluded.role
	`, m.TripID, m.UserID, string(m.Status), m.Role)
	if err != nil {
		return fmt.Errorf("saving membership: %w", err)
	}
	return nil
}

// ListMembers returns a trip's membership rows ordered by user.
func (s *membershipStore) ListMembers(ctx context.Context, tripID string) ([]domain.Membership, error) {
	rows, err := s.store.db.QueryContext(ctx,
		"SELECT user_id, status, role FROM memberships WHERE trip_id = ? ORDER BY user_id", tripID)
	if err != nil {
		return nil, fmt.Errorf("querying memberships: %w", err)
	}
	defer rows.Close()

	var members []domain.Membership //nolint:prealloc // size unknown from query
	for rows.Next() {
		m := domain.Membership{TripID: tripID}
		var status string
		if err := rows.Scan(&m.UserID, &status, &m.Role); err != nil {
			return nil, fmt.Errorf("scanning membership: %w", err)
		}
		m.Status = domain.MembershipStatus(status)
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating memberships: %w", err)
	}
	return members, nil
}

// ==================== Context Cache Store ====================

type cacheStore struct {
	store *Store
}

var _ driven.ContextCacheStore = (*cacheStore)(nil)

// Get returns the entry for key or domain.ErrNotFound. Expired entries are
// returned as-is; the cache service decides what is fresh.
func (s *cacheStore) Get(ctx context.Context, key domain.CacheKey) (*domain.ContextCacheEntry, error) {
	var (
		record string
		ttlMS  int64
		entry  = domain.ContextCacheEntry{Key: key}
	)
	err := s.store.db.QueryRowContext(ctx,
		"SELECT record, computed_at, ttl_ms FROM context_cache WHERE trip_id = ? AND user_id = ?",
		key.TripID, key.UserID,
	).Scan(&record, &entry.ComputedAt, &ttlMS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting cache entry: %w", err)
	}
	if err := json.Unmarshal([]byte(record), &entry.Record); err != nil {
		return nil, fmt.Errorf("decoding cached record: %w", err)
	}
	entry.TTL = time.Duration(ttlMS) * time.Millisecond
	return &entry, nil
}

// Put stores or replaces the entry for its key.
func (s *cacheStore) Put(ctx context.Context, entry *domain.ContextCacheEntry) error {
	record, err := json.Marshal(entry.Record)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO context_cache (trip_id, user_id, record, computed_at, ttl_ms)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(trip_id, user_id) DO UPDATE SET
			record = excluded.record,
			computed_at = excluded.computed_at,
			ttl_ms = excluded.ttl_ms
	`, entry.Key.TripID, entry.Key.UserID, string(record), entry.ComputedAt.UTC(), entry.TTL.Milliseconds())
	if err != nil {
		return fmt.Errorf("saving cache entry: %w", err)
	}
	return nil
}

// Delete removes the entry for key. Missing entries are not an error.
func (s *cacheStore) Delete(ctx context.Context, key domain.CacheKey) error {
	_, err := s.store.db.ExecContext(ctx,
		"DELETE FROM context_cache WHERE trip_id = ? AND user_id = ?", key.TripID, key.UserID)
	if err != nil {
		return fmt.Errorf("deleting cache entry: %w", err)
	}
	return nil
}

// ==================== Usage Store ====================

type usageStore struct {
	store *Store
}

var _ driven.UsageStore = (*usageStore)(nil)

// IncrementIfBelow increments the counter only while it is below limit.
// The check and the increment are one statement, so concurrent callers
// can never push the counter past limit.
func (s *usageStore) IncrementIfBelow(ctx context.Context, key domain.UsageKey, limit int) (int, bool, error) {
	if limit <= 0 {
		count, err := s.Count(ctx, key)
		return count, false, err
	}

	var count int
	err := s.store.db.QueryRowContext(ctx, `
		INSERT INTO usage_counters (user_id, trip_id, day, count)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(user_id, trip_id, day) DO UPDATE SET count = count + 1
		WHERE usage_counters.count < ?
		RETURNING count
	`, key.UserID, key.TripID, key.Date, limit).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		// The conflict update was skipped: the counter is already at limit.
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
	err := s.store.db.QueryRowContext(ctx, `
		INSERT INTO usage_counters (user_id, trip_id, day, count)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(user_id, trip_id, day) DO UPDATE SET count = count + 1
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
	err := s.store.db.QueryRowContext(ctx,
		"SELECT count FROM usage_counters WHERE user_id = ? AND trip_id = ? AND day = ?",
		key.UserID, key.TripID, key.Date,
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading usage: %w", err)
	}
	return count, nil
}
