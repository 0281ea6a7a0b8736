package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tripsync/tripctx/internal/core/domain"
	"github.com/tripsync/tripctx/internal/core/ports/driven"
	"github.com/tripsync/tripctx/internal/core/ports/driving"
	"github.com/tripsync/tripctx/internal/logger"
)

// Ensure ContextCacheService implements the interface.
var _ driving.ContextCache = (*ContextCacheService)(nil)

const defaultComputeTimeout = 10 * time.Second

// ContextCacheService caches aggregate records per (trip, user) and
// coalesces concurrent recomputation of the same key.
//
// Returned records share slices with the cached entry and must be treated
// as read-only.
type ContextCacheService struct {
	members        driven.MembershipOracle
	aggregator     driving.AggregatorService
	store          driven.ContextCacheStore
	flights        singleflight.Group
	computeTimeout time.Duration
	now            func() time.Time

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// NewContextCacheService creates a cache in front of aggregator.
func NewContextCacheService(
	members driven.MembershipOracle,
	aggregator driving.AggregatorService,
	store driven.ContextCacheStore,
	computeTimeout time.Duration,
) *ContextCacheService {
	if computeTimeout <= 0 {
		computeTimeout = defaultComputeTimeout
	}
	return &ContextCacheService{
		members:        members,
		aggregator:     aggregator,
		store:          store,
		computeTimeout: computeTimeout,
		now:            time.Now,
	}
}

// SetClock overrides the time source used for expiry.
func (c *ContextCacheService) SetClock(now func() time.Time) {
	c.now = now
}

// GetOrCompute returns the cached record for (tripID, callerID) when it is
// younger than ttl, otherwise aggregates a new one. At most one aggregation
// per key runs at a time; concurrent callers share its result.
//
// Membership is checked on every call, hits included. If the caller's
// context ends first the caller gets ctx.Err() while the aggregation runs
// on and still fills the cache.
func (c *ContextCacheService) GetOrCompute(
	ctx context.Context, tripID, callerID string, ttl time.Duration,
) (*domain.AggregateRecord, error) {
	key := domain.CacheKey{TripID: tripID, UserID: callerID}

	if err := requireActiveMember(ctx, c.members, tripID, callerID); err != nil {
		if errors.Is(err, domain.ErrAccessDenied) {
			c.evict(ctx, key)
		}
		return nil, err
	}

	entry := c.lookup(ctx, key)
	if entry != nil && !entry.IsExpired(c.now()) {
		logger.Debug("Context cache hit: trip=%s user=%s age=%s", tripID, callerID, c.now().Sub(entry.ComputedAt))
		rec := entry.Record
		return &rec, nil
	}
	logger.Debug("Context cache miss: trip=%s user=%s", tripID, callerID)

	flightCtx := context.WithoutCancel(ctx)
	ch := c.flights.DoChan(key.String(), func() (any, error) {
		if !c.track() {
			return nil, errCacheClosed
		}
		defer c.inflight.Done()
		return c.compute(flightCtx, key, ttl)
	})

	select {
	case <-ctx.Done():
		logger.Debug("Caller gone, aggregation for trip=%s continues in background", tripID)
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err == nil {
			rec := *res.Val.(*domain.AggregateRecord)
			return &rec, nil
		}
		if errors.Is(res.Err, domain.ErrAccessDenied) {
			c.evict(ctx, key)
			return nil, res.Err
		}
		if entry != nil {
			logger.Warn("Aggregation failed, serving stale record from %s: %v",
				entry.ComputedAt.Format(time.RFC3339), res.Err)
			rec := entry.Record
			rec.Stale = true
			return &rec, nil
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrCacheCompute, res.Err)
	}
}

// compute runs inside the single flight for key. It re-checks the store so a
// caller that missed just before another flight finished does not aggregate again.
func (c *ContextCacheService) compute(
	ctx context.Context, key domain.CacheKey, ttl time.Duration,
) (*domain.AggregateRecord, error) {
	if entry := c.lookup(ctx, key); entry != nil && !entry.IsExpired(c.now()) {
		rec := entry.Record
		return &rec, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.computeTimeout)
	defer cancel()

	rec, err := c.aggregator.Aggregate(ctx, key.TripID, key.UserID)
	if err != nil {
		return nil, err
	}

	entry := &domain.ContextCacheEntry{
		Key:        key,
		Record:     *rec,
		ComputedAt: c.now(),
		TTL:        ttl,
	}
	entry.Record.Stale = false
	if err := c.store.Put(ctx, entry); err != nil {
		logger.Warn("Context cache write failed: %v", err)
	}
	return &entry.Record, nil
}

func (c *ContextCacheService) lookup(ctx context.Context, key domain.CacheKey) *domain.ContextCacheEntry {
	entry, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			logger.Warn("Context cache read failed: %v", err)
		}
		return nil
	}
	return entry
}

func (c *ContextCacheService) evict(ctx context.Context, key domain.CacheKey) {
	if err := c.store.Delete(ctx, key); err != nil {
		logger.Warn("Context cache evict failed: %v", err)
	}
}

var errCacheClosed = errors.New("context cache closed")

func (c *ContextCacheService) track() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.inflight.Add(1)
	return true
}

// Close refuses new aggregations and waits for in-flight ones.
func (c *ContextCacheService) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight aggregations: %w", ctx.Err())
	}
}

// Invalidate drops the cached record for (tripID, userID).
func (c *ContextCacheService) Invalidate(ctx context.Context, tripID, userID string) error {
	if err := c.store.Delete(ctx, domain.CacheKey{TripID: tripID, UserID: userID}); err != nil {
		return fmt.Errorf("invalidate context cache: %w", err)
	}
	return nil
}
