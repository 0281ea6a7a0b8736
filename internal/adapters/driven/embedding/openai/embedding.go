// Package openai embeds text with the OpenAI embeddings API or any
// compatible endpoint.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tripsync/tripctx/internal/adapters/driven/embedding/httpapi"
	"github.com/tripsync/tripctx/internal/core/domain"
	"github.com/tripsync/tripctx/internal/core/ports/driven"
)

var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// Defaults for an unconfigured service.
const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "text-embedding-3-small"

	// maxBatch is well under the API's 2048-input limit so that one failed
	// request does not discard a whole document's chunks.
	maxBatch = 256
)

// nativeDimensions lists the full output width per model. Only the
// text-embedding-3 family accepts a smaller requested width.
var nativeDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// Config selects the endpoint and model.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration

	// Dimensions requests shortened vectors from text-embedding-3 models.
	Dimensions int
}

// EmbeddingService calls /embeddings.
type EmbeddingService struct {
	api     *httpapi.Client
	baseURL string
	header  http.Header
	model   string
	dims    int
	shorten bool
}

type embeddingRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	Dimensions     int      `json:"dimensions,omitempty"`
	EncodingFormat string   `json:"encoding_format"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewEmbeddingService applies defaults to cfg. An API key is required.
func NewEmbeddingService(cfg Config) (*EmbeddingService, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	native, known := nativeDimensions[cfg.Model]
	if !known {
		native = nativeDimensions[DefaultModel]
	}
	shorten := strings.HasPrefix(cfg.Model, "text-embedding-3-") && cfg.Dimensions > 0 && cfg.Dimensions < native
	dims := native
	if shorten {
		dims = cfg.Dimensions
	}

	return &EmbeddingService{
		api:     httpapi.New("openai", cfg.Timeout, maxBatch),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		header:  http.Header{"Authorization": {"Bearer " + cfg.APIKey}},
		model:   cfg.Model,
		dims:    dims,
		shorten: shorten,
	}, nil
}

// Embed embeds a single text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts. The API may return data out of order; results
// are placed by index.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return s.api.Batches(ctx, texts, func(ctx context.Context, batch []string) ([][]float64, error) {
		req := embeddingRequest{Model: s.model, Input: batch, EncodingFormat: "float"}
		if s.shorten {
			req.Dimensions = s.dims
		}

		var resp embeddingResponse
		if err := s.api.PostJSON(ctx, s.baseURL+"/embeddings", s.header, req, &resp); err != nil {
			return nil, err
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("%w: openai: %s", domain.ErrEmbeddingProvider, resp.Error.Message)
		}

		vecs := make([][]float64, len(resp.Data))
		for _, d := range resp.Data {
			if d.Index < 0 || d.Index >= len(vecs) {
				return nil, fmt.Errorf("%w: openai: embedding index %d out of range", domain.ErrEmbeddingProvider, d.Index)
			}
			vecs[d.Index] = d.Embedding
		}
		return vecs, nil
	})
}

// Dimensions returns the vector width.
func (s *EmbeddingService) Dimensions() int {
	if w := s.api.Width(); w > 0 {
		return w
	}
	return s.dims
}

// ModelName returns the model identifier.
func (s *EmbeddingService) ModelName() string {
	return s.model
}

// Ping lists models, which checks the key without spending tokens.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	return s.api.Check(ctx, s.baseURL+"/models", s.header)
}

// Close is a no-op.
func (s *EmbeddingService) Close() error {
	return nil
}
