package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/tripsync/tripctx/internal/core/domain"
	"github.com/tripsync/tripctx/internal/core/ports/driven"
	"github.com/tripsync/tripctx/internal/core/ports/driving"
	"github.com/tripsync/tripctx/internal/lexical"
	"github.com/tripsync/tripctx/internal/logger"
)

// Ensure RetrieverService implements the interface.
var _ driving.RetrieverService = (*RetrieverService)(nil)

const defaultK = 5

// RetrieverConfig tunes hybrid ranking.
type RetrieverConfig struct {
	// DefaultK is used when a caller passes k <= 0.
	DefaultK int

	SemanticWeight float64
	LexicalWeight  float64

	// CandidateLimit caps the chunks loaded per query by similarity.
	// Zero loads every eligible chunk of the trip.
	CandidateLimit int

	// Retry bounds query embedding retries.
	Retry RetryPolicy
}

// DefaultRetrieverConfig returns a 0.7/0.3 semantic/lexical blend.
func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		DefaultK:       defaultK,
		SemanticWeight: 0.7,
		LexicalWeight:  0.3,
		Retry:          DefaultRetryPolicy(),
	}
}

// RetrieverService ranks a trip's chunks by fused semantic and lexical score.
type RetrieverService struct {
	members  driven.MembershipOracle
	searcher driven.ChunkSearcher
	embedder driven.EmbeddingService
	cfg      RetrieverConfig
}

// NewRetrieverService creates a new retriever.
func NewRetrieverService(
	members driven.MembershipOracle,
	searcher driven.ChunkSearcher,
	embedder driven.EmbeddingService,
	cfg RetrieverConfig,
) *RetrieverService {
	if cfg.DefaultK <= 0 {
		cfg.DefaultK = defaultK
	}
	if cfg.SemanticWeight <= 0 && cfg.LexicalWeight <= 0 {
		cfg.SemanticWeight, cfg.LexicalWeight = 0.7, 0.3
	}
	return &RetrieverService{
		members:  members,
		searcher: searcher,
		embedder: embedder,
		cfg:      cfg,
	}
}

// Retrieve returns at most k chunks of tripID ranked against query.
func (s *RetrieverService) Retrieve(
	ctx context.Context, tripID, callerID, query string, k int,
) ([]domain.RetrievedChunk, error) {
	if err := requireActiveMember(ctx, s.members, tripID, callerID); err != nil {
		return nil, err
	}

	logger.Section("Retrieval")
	defer logger.Timed("retrieve")()
	logger.Debug("Trip: %s, query: %q, k: %d", tripID, query, k)

	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.RetrievedChunk{}, nil
	}
	if k <= 0 {
		k = s.cfg.DefaultK
	}
	if s.embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}

	var queryVec []float32
	err := retry(ctx, s.cfg.Retry, "embed query", func(ctx context.Context) error {
		var embedErr error
		queryVec, embedErr = s.embedder.Embed(ctx, query)
		return embedErr
	})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w: %w", domain.ErrEmbeddingProvider, err)
	}

	candidates, err := s.searcher.SearchTripChunks(ctx, driven.ChunkQuery{
		TripID:    tripID,
		CallerID:  callerID,
		Embedding: queryVec,
		Limit:     s.cfg.CandidateLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("search trip chunks: %w", err)
	}
	logger.Debug("Candidates: %d", len(candidates))

	results := s.rank(candidates, lexical.Terms(query))
	if len(results) > k {
		results = results[:k]
	}
	logger.Info("Retrieved %d chunks", len(results))
	return results, nil
}

// rank scores and orders candidates. Ties go to the newest document, then
// earlier chunk position, then chunk id, so equal input always yields equal order.
func (s *RetrieverService) rank(candidates []driven.ChunkCandidate, terms []string) []domain.RetrievedChunk {
	results := make([]domain.RetrievedChunk, 0, len(candidates))
	for _, c := range candidates {
		if !c.Document.IsRetrievable() {
			continue
		}
		semantic := clamp01(c.Similarity)
		lex := lexical.Overlap(terms, c.Chunk.Text)
		results = append(results, domain.RetrievedChunk{
			Chunk:         c.Chunk,
			Document:      c.Document,
			Score:         s.fuse(semantic, lex),
			SemanticScore: semantic,
			LexicalScore:  lex,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := &results[i], &results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Document.CreatedAt.Equal(b.Document.CreatedAt) {
			return a.Document.CreatedAt.After(b.Document.CreatedAt)
		}
		if a.Document.ID != b.Document.ID {
			return a.Document.ID > b.Document.ID
		}
		if a.Chunk.Position != b.Chunk.Position {
			return a.Chunk.Position < b.Chunk.Position
		}
		return a.Chunk.ID < b.Chunk.ID
	})

	return results
}

// fuse normalises the weights so the fused score stays in [0,1].
func (s *RetrieverService) fuse(semantic, lex float64) float64 {
	total := s.cfg.SemanticWeight + s.cfg.LexicalWeight
	return (s.cfg.SemanticWeight*semantic + s.cfg.LexicalWeight*lex) / total
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
