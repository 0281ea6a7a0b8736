// Package ollama embeds text with a local Ollama server.
package ollama

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tripsync/tripctx/internal/adapters/driven/embedding/httpapi"
	"github.com/tripsync/tripctx/internal/core/domain"
	"github.com/tripsync/tripctx/internal/core/ports/driven"
)

var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// Defaults for an unconfigured service.
const (
	DefaultBaseURL    = "http://localhost:11434"
	DefaultModel      = "nomic-embed-text"
	DefaultDimensions = 768
	DefaultKeepAlive  = "5m"
)

// Config selects the server and model.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration

	// Dimensions is reported until the first response reveals the real width.
	Dimensions int

	// MaxBatch caps the texts per /api/embed call.
	MaxBatch int

	// KeepAlive is how long Ollama keeps the model loaded after a call.
	KeepAlive string
}

// EmbeddingService calls /api/embed.
type EmbeddingService struct {
	api       *httpapi.Client
	baseURL   string
	model     string
	dims      int
	keepAlive string
}

type embedRequest struct {
	Model     string   `json:"model"`
	Input     []string `json:"input"`
	Truncate  bool     `json:"truncate"`
	KeepAlive string   `json:"keep_alive,omitempty"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// NewEmbeddingService applies defaults to cfg.
func NewEmbeddingService(cfg Config) *EmbeddingService {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.KeepAlive == "" {
		cfg.KeepAlive = DefaultKeepAlive
	}
	return &EmbeddingService{
		api:       httpapi.New("ollama", cfg.Timeout, cfg.MaxBatch),
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		model:     cfg.Model,
		dims:      cfg.Dimensions,
		keepAlive: cfg.KeepAlive,
	}
}

// Embed embeds a single text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts, splitting large inputs across several calls.
// Inputs longer than the model context are truncated by the server.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return s.api.Batches(ctx, texts, func(ctx context.Context, batch []string) ([][]float64, error) {
		var resp embedResponse
		err := s.api.PostJSON(ctx, s.baseURL+"/api/embed", nil, embedRequest{
			Model:     s.model,
			Input:     batch,
			Truncate:  true,
			KeepAlive: s.keepAlive,
		}, &resp)
		if err != nil {
			return nil, err
		}
		if resp.Error != "" {
			return nil, fmt.Errorf("%w: ollama: %s", domain.ErrEmbeddingProvider, resp.Error)
		}
		return resp.Embeddings, nil
	})
}

// Dimensions returns the observed vector width, or the configured one
// before any call has succeeded.
func (s *EmbeddingService) Dimensions() int {
	if w := s.api.Width(); w > 0 {
		return w
	}
	return s.dims
}

// ModelName returns the Ollama model tag.
func (s *EmbeddingService) ModelName() string {
	return s.model
}

// Ping lists local models, which needs no inference.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	return s.api.Check(ctx, s.baseURL+"/api/tags", nil)
}

// Close is a no-op.
func (s *EmbeddingService) Close() error {
	return nil
}
