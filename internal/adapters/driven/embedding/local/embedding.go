// Package local provides a feature-hashing embedding service that runs
// in-process with no network access.
//
// Vectors are built from stop-word-filtered word tokens and adjacent word
// pairs hashed into a fixed number of buckets, then L2 normalised. They only
// capture vocabulary overlap, which is enough for offline use and tests.
package local

import (
	"context"
	"hash/fnv"

	"github.com/tripsync/tripctx/internal/core/ports/driven"
	"github.com/tripsync/tripctx/internal/lexical"
	"github.com/tripsync/tripctx/internal/vecmath"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// DefaultDimensions is the vector size used when none is configured.
const DefaultDimensions = 256

// ModelName is reported for vectors produced by this service.
const ModelName = "local-hashing-v1"

// EmbeddingService hashes text into fixed-size vectors.
type EmbeddingService struct {
	dimensions int
}

// NewEmbeddingService creates a hashing embedder with the given vector size.
func NewEmbeddingService(dimensions int) *EmbeddingService {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &EmbeddingService{dimensions: dimensions}
}

// Embed hashes text into a normalised vector. Empty text gives a zero vector.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, s.dimensions)
	var prev string
	for _, tok := range lexical.Tokens(text) {
		if lexical.IsStopWord(tok) {
			prev = ""
			continue
		}
		s.add(vec, tok, 1)
		if prev != "" {
			s.add(vec, prev+" "+tok, 0.5)
		}
		prev = tok
	}
	vecmath.Normalize(vec)
	return vec, nil
}

// EmbedBatch embeds each text in order.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := s.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// add hashes feature into a bucket. The top hash bit picks the sign so
// colliding features tend to cancel rather than accumulate.
func (s *EmbeddingService) add(vec []float32, feature string, weight float32) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum32()
	idx := int(sum % uint32(s.dimensions))
	if sum&(1<<31) != 0 {
		weight = -weight
	}
	vec[idx] += weight
}

// Dimensions returns the embedding vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

// ModelName returns the name of the embedding model.
func (s *EmbeddingService) ModelName() string {
	return ModelName
}

// Ping always succeeds.
func (s *EmbeddingService) Ping(context.Context) error {
	return nil
}

// Close releases resources.
func (s *EmbeddingService) Close() error {
	return nil
}
