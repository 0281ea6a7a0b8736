// Package throttle wraps an embedding service with a shared token bucket.
package throttle

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tripsync/tripctx/internal/core/domain"
	"github.com/tripsync/tripctx/internal/core/ports/driven"
	"github.com/tripsync/tripctx/internal/logger"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// DefaultBackoff is how long all calls pause after a provider rate limit.
const DefaultBackoff = 10 * time.Second

// Config holds rate limiting configuration.
type Config struct {
	// RequestsPerSecond is the sustained rate. Zero or less disables the bucket.
	RequestsPerSecond float64

	// Burst is the maximum burst size (minimum 1).
	Burst int

	// Backoff is the pause applied after a rate limit response.
	Backoff time.Duration
}

// EmbeddingService delays calls to the wrapped service so the process stays
// under a request rate, and pauses everyone after a provider rate limit.
type EmbeddingService struct {
	next    driven.EmbeddingService
	limiter *rate.Limiter
	backoff time.Duration

	mu      sync.Mutex
	retryAt time.Time
	now     func() time.Time
}

// New wraps next with the configured limits.
func New(next driven.EmbeddingService, cfg Config) *EmbeddingService {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	return &EmbeddingService{
		next:    next,
		limiter: rate.NewLimiter(limit, cfg.Burst),
		backoff: cfg.Backoff,
		now:     time.Now,
	}
}

// wait blocks until a call may proceed or ctx ends.
func (s *EmbeddingService) wait(ctx context.Context) error {
	s.mu.Lock()
	retryAt := s.retryAt
	s.mu.Unlock()

	if d := retryAt.Sub(s.now()); d > 0 {
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return s.limiter.Wait(ctx)
}

// record starts a shared backoff when err is a provider rate limit.
func (s *EmbeddingService) record(err error) {
	if !errors.Is(err, domain.ErrRateLimited) {
		return
	}
	s.mu.Lock()
	s.retryAt = s.now().Add(s.backoff)
	s.mu.Unlock()
	logger.Warn("Embedding provider rate limited, pausing calls for %s", s.backoff)
}

// Embed waits for a token, then embeds text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	vec, err := s.next.Embed(ctx, text)
	s.record(err)
	return vec, err
}

// EmbedBatch waits for one token per batch, then embeds texts.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	vecs, err := s.next.EmbedBatch(ctx, texts)
	s.record(err)
	return vecs, err
}

// Dimensions returns the wrapped service's vector size.
func (s *EmbeddingService) Dimensions() int { return s.next.Dimensions() }

// ModelName returns the wrapped service's model name.
func (s *EmbeddingService) ModelName() string { return s.next.ModelName() }

// Ping checks the wrapped service without consuming a token.
func (s *EmbeddingService) Ping(ctx context.Context) error { return s.next.Ping(ctx) }

// Close closes the wrapped service.
func (s *EmbeddingService) Close() error { return s.next.Close() }
