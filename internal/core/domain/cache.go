package domain

import "time"

// CacheKey identifies one cached aggregate record.
type CacheKey struct {
	TripID string
	UserID string
}

// String returns a stable textual key. The separator cannot appear in ids.
func (k CacheKey) String() string {
	return k.TripID + "\x00" + k.UserID
}

// ContextCacheEntry is a cached aggregate record.
type ContextCacheEntry struct {
	Key        CacheKey
	Record     AggregateRecord
	ComputedAt time.Time
	TTL        time.Duration
}

// IsExpired returns true once now - computed_at > ttl.
func (e *ContextCacheEntry) IsExpired(now time.Time) bool {
	return now.Sub(e.ComputedAt) > e.TTL
}
