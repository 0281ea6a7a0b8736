package driven

import (
	"context"

	"github.com/tripsync/tripctx/internal/core/domain"
)

// ChunkSearcher is the privileged join over chunks, documents and memberships.
//
// Implementations bypass per-row access checks for speed, so every
// implementation MUST verify active membership of CallerID in TripID as its
// first step and return domain.ErrAccessDenied before reading any chunk.
// Only chunks of ready, non-deleted documents are returned.
type ChunkSearcher interface {
	SearchTripChunks(ctx context.Context, q ChunkQuery) ([]ChunkCandidate, error)
}

// ChunkQuery selects retrieval candidates for one trip.
type ChunkQuery struct {
	TripID   string
	CallerID string

	// Embedding is the query vector used for similarity.
	Embedding []float32

	// Limit caps candidates by similarity. Zero returns every eligible chunk.
	Limit int
}

// ChunkCandidate is a chunk joined with its document.
type ChunkCandidate struct {
	Chunk    domain.Chunk
	Document domain.Document

	// Similarity is the cosine similarity between the chunk and query vectors.
	Similarity float64
}
