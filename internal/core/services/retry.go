package services

import (
	"context"
	"time"

	"github.com/tripsync/tripctx/internal/core/domain"
	"github.com/tripsync/tripctx/internal/logger"
)

const maxRetryDelay = 5 * time.Second

// RetryPolicy bounds retries of transient provider errors.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// BaseDelay doubles on every retry, capped at five seconds.
	BaseDelay time.Duration
}

// DefaultRetryPolicy returns three retries starting at 200ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseDelay: 200 * time.Millisecond}
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := p.BaseDelay << attempt
	if d <= 0 || d > maxRetryDelay {
		d = maxRetryDelay
	}
	return d
}

// retry runs fn until it succeeds, returns a non-retryable error, the
// context ends, or retries are exhausted. Errors from fn that are not
// already classified are treated as transient provider errors.
func retry(ctx context.Context, p RetryPolicy, op string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if domain.IsFatal(err) || ctx.Err() != nil || attempt >= p.MaxRetries {
			return err
		}

		wait := p.delay(attempt)
		logger.Warn("%s failed (attempt %d/%d), retrying in %s: %v", op, attempt+1, p.MaxRetries+1, wait, err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}
