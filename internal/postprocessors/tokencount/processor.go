// Package tokencount annotates chunks with an estimated model token count.
package tokencount

import (
	"context"

	"github.com/tripsync/tripctx/internal/core/domain"
)

// Processor sets Chunk.TokenCount. It implements the PostProcessor interface
// and must run after a chunk-creating processor.
type Processor struct{}

// New creates a token count processor.
func New() *Processor {
	return &Processor{}
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "tokencount"
}

// Process annotates chunks in place and returns them.
func (p *Processor) Process(_ context.Context, _ *domain.Document, chunks []domain.Chunk) ([]domain.Chunk, error) {
	for i := range chunks {
		chunks[i].TokenCount = domain.EstimateTokens(chunks[i].Text)
	}
	return chunks, nil
}
