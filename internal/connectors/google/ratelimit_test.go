package google

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Wait(t *testing.T) {
	r := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 100, BurstSize: 2})
	ctx := context.Background()

	require.NoError(t, r.Wait(ctx))
	require.NoError(t, r.Wait(ctx))
}

func TestRateLimiter_UnlimitedWhenRateIsZero(t *testing.T) {
	r := NewRateLimiter(RateLimitConfig{})
	for i := 0; i < 50; i++ {
		require.NoError(t, r.Wait(context.Background()))
	}
}

func TestRateLimiter_BackoffFailsFastInsideDeadline(t *testing.T) {
	r := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 100, BurstSize: 1})
	r.RecordRateLimitError(time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := r.Wait(ctx)
	assert.ErrorIs(t, err, ErrBackoff)
	assert.Less(t, time.Since(start), 40*time.Millisecond)
}

func TestRateLimiter_BackoffElapses(t *testing.T) {
	r := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 100, BurstSize: 1})
	r.RecordRateLimitError(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, r.Wait(ctx))
}

func TestRateLimiter_DefaultBackoff(t *testing.T) {
	r := NewRateLimiter(DefaultCalendarRateLimit)
	fixed := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	r.RecordRateLimitError(0)
	assert.Equal(t, fixed.Add(defaultBackoff), r.retryAt)
}
