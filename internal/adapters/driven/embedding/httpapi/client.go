// Package httpapi holds the request plumbing shared by the remote embedding
// providers: JSON round trips, status classification, sub-batching and
// vector width checks.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tripsync/tripctx/internal/core/domain"
)

const (
	// DefaultTimeout bounds one HTTP round trip.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxBatch is the largest number of texts sent in one request.
	DefaultMaxBatch = 64

	maxErrorBody = 512
	parallelism  = 2
)

// Client talks to one provider. All vectors it returns share one width: the
// first response fixes it and later responses of a different width fail.
type Client struct {
	provider string
	http     *http.Client
	maxBatch int
	width    atomic.Int64
}

// New creates a client. provider prefixes error messages.
func New(provider string, timeout time.Duration, maxBatch int) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatch
	}
	return &Client{
		provider: provider,
		http:     &http.Client{Timeout: timeout},
		maxBatch: maxBatch,
	}
}

// Width returns the vector width seen so far, or zero before the first call.
func (c *Client) Width() int {
	return int(c.width.Load())
}

// PostJSON sends in to url and decodes the response body into out.
func (c *Client) PostJSON(ctx context.Context, url string, header http.Header, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", c.provider, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: create request: %w", c.provider, err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: send request: %w", domain.ErrEmbeddingProvider, c.provider, err)
	}
	defer resp.Body.Close()

	if err := c.statusError(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s: decode response: %w", domain.ErrEmbeddingProvider, c.provider, err)
	}
	return nil
}

// Check issues a GET and fails on any non-200 response.
func (c *Client) Check(ctx context.Context, url string, header http.Header) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("%s: create ping request: %w", c.provider, err)
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: ping failed: %w", c.provider, err)
	}
	defer resp.Body.Close()
	return c.statusError(resp)
}

func (c *Client) statusError(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w: %s: %s", domain.ErrEmbeddingProvider, domain.ErrRateLimited, c.provider, body)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s: authentication failed (status %d): %s",
			domain.ErrEmbeddingProvider, c.provider, resp.StatusCode, body)
	default:
		return fmt.Errorf("%w: %s: status %d: %s", domain.ErrEmbeddingProvider, c.provider, resp.StatusCode, body)
	}
}

// EmbedFunc embeds one sub-batch. It must return one vector per text.
type EmbedFunc func(ctx context.Context, texts []string) ([][]float64, error)

// Batches splits texts into requests of at most the client's batch size,
// runs them with bounded parallelism and returns the vectors in input order.
func (c *Client) Batches(ctx context.Context, texts []string, fn EmbedFunc) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	for start := 0; start < len(texts); start += c.maxBatch {
		end := min(start+c.maxBatch, len(texts))
		g.Go(func() error {
			vecs, err := fn(gctx, texts[start:end])
			if err != nil {
				return err
			}
			if len(vecs) != end-start {
				return fmt.Errorf("%w: %s: got %d embeddings for %d inputs",
					domain.ErrEmbeddingProvider, c.provider, len(vecs), end-start)
			}
			for i, v := range vecs {
				if err := c.checkWidth(len(v)); err != nil {
					return err
				}
				out[start+i] = toFloat32(v)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) checkWidth(n int) error {
	if n == 0 {
		return fmt.Errorf("%w: %s: empty embedding", domain.ErrEmbeddingProvider, c.provider)
	}
	if c.width.CompareAndSwap(0, int64(n)) {
		return nil
	}
	if w := c.width.Load(); w != int64(n) {
		return fmt.Errorf("%w: %s: embedding width changed from %d to %d", domain.ErrEmbeddingProvider, c.provider, w, n)
	}
	return nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
