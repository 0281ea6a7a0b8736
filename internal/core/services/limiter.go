package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tripsync/tripctx/internal/core/domain"
	"github.com/tripsync/tripctx/internal/core/ports/driven"
	"github.com/tripsync/tripctx/internal/core/ports/driving"
	"github.com/tripsync/tripctx/internal/logger"
)

// Ensure UsageLimiterService implements the interface.
var _ driving.UsageLimiter = (*UsageLimiterService)(nil)

const usageDateLayout = "2006-01-02"

// UsageLimiterService enforces daily per-(user, trip) query quotas.
// Counters are keyed by calendar day in loc, so they reset at local midnight
// without any cleanup job.
type UsageLimiterService struct {
	store  driven.UsageStore
	limits map[domain.Tier]int
	tiers  map[string]domain.Tier
	loc    *time.Location
	now    func() time.Time
}

// NewUsageLimiterService creates a limiter. Tiers missing from limits use the
// defaults; a nil loc means UTC.
func NewUsageLimiterService(store driven.UsageStore, limits map[domain.Tier]int, loc *time.Location) *UsageLimiterService {
	merged := domain.DefaultTierLimits()
	for tier, limit := range limits {
		if tier.IsUnlimited() {
			continue
		}
		merged[tier] = limit
	}
	if loc == nil {
		loc = time.UTC
	}
	return &UsageLimiterService{
		store:  store,
		limits: merged,
		loc:    loc,
		now:    time.Now,
	}
}

// SetClock overrides the time source used for day boundaries.
func (l *UsageLimiterService) SetClock(now func() time.Time) {
	l.now = now
}

// SetUserTiers assigns users to tiers. Users not listed are free.
func (l *UsageLimiterService) SetUserTiers(tiers map[string]domain.Tier) {
	l.tiers = tiers
}

// TierOf returns the tier assigned to userID.
func (l *UsageLimiterService) TierOf(userID string) domain.Tier {
	if tier, ok := l.tiers[userID]; ok {
		return tier
	}
	return domain.TierFree
}

// CheckAndIncrement admits or rejects one query as a single atomic store
// operation, so concurrent requests never exceed the tier's ceiling.
// An empty tier means the user's assigned tier. Unlimited tiers are always
// admitted but still counted.
func (l *UsageLimiterService) CheckAndIncrement(
	ctx context.Context, userID, tripID string, tier domain.Tier,
) (domain.UsageDecision, error) {
	key, limit, err := l.prepare(userID, tripID, tier)
	if err != nil {
		return domain.UsageDecision{}, err
	}
	if tier == "" {
		tier = l.TierOf(userID)
	}

	if limit < 0 {
		count, err := l.store.Increment(ctx, key)
		if err != nil {
			return domain.UsageDecision{}, fmt.Errorf("increment usage: %w", err)
		}
		return domain.UsageDecision{Allowed: true, Remaining: -1, Count: count, Limit: -1}, nil
	}

	count, ok, err := l.store.IncrementIfBelow(ctx, key, limit)
	if err != nil {
		return domain.UsageDecision{}, fmt.Errorf("increment usage: %w", err)
	}

	decision := domain.UsageDecision{
		Allowed:   ok,
		Remaining: max(limit-count, 0),
		Count:     count,
		Limit:     limit,
	}
	if !ok {
		logger.Info("Quota exceeded: user=%s trip=%s tier=%s count=%d", userID, tripID, tier, count)
	}
	return decision, nil
}

// Usage reports today's usage without incrementing.
func (l *UsageLimiterService) Usage(
	ctx context.Context, userID, tripID string, tier domain.Tier,
) (domain.UsageDecision, error) {
	key, limit, err := l.prepare(userID, tripID, tier)
	if err != nil {
		return domain.UsageDecision{}, err
	}

	count, err := l.store.Count(ctx, key)
	if err != nil {
		return domain.UsageDecision{}, fmt.Errorf("read usage: %w", err)
	}
	if limit < 0 {
		return domain.UsageDecision{Allowed: true, Remaining: -1, Count: count, Limit: -1}, nil
	}
	return domain.UsageDecision{
		Allowed:   count < limit,
		Remaining: max(limit-count, 0),
		Count:     count,
		Limit:     limit,
	}, nil
}

// prepare resolves the counter key and the tier's limit (-1 for unlimited).
func (l *UsageLimiterService) prepare(userID, tripID string, tier domain.Tier) (domain.UsageKey, int, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(tripID) == "" {
		return domain.UsageKey{}, 0, fmt.Errorf("%w: user and trip are required", domain.ErrInvalidInput)
	}
	if tier == "" {
		tier = l.TierOf(userID)
	}
	if !tier.IsValid() {
		return domain.UsageKey{}, 0, fmt.Errorf("%w: unknown tier %q", domain.ErrInvalidInput, tier)
	}

	key := domain.UsageKey{
		UserID: userID,
		TripID: tripID,
		Date:   l.now().In(l.loc).Format(usageDateLayout),
	}
	if tier.IsUnlimited() {
		return key, -1, nil
	}
	return key, l.limits[tier], nil
}
