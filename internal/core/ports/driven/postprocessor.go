package driven

import (
	"context"

	"github.com/tripsync/tripctx/internal/core/domain"
)

// PostProcessor is one stage of the chunking chain. The first stage receives
// nil chunks and splits the document's text. Later stages filter or annotate
// the chunks they are given and may drop some of them.
type PostProcessor interface {
	// Name is the key used in ingestion.processors.
	Name() string

	Process(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) ([]domain.Chunk, error)
}

// PostProcessorPipeline turns a normalised document into embeddable chunks.
// Returned chunks carry the document's ID and contiguous positions from 0.
// A document with no usable text yields no chunks and no error.
type PostProcessorPipeline interface {
	Process(ctx context.Context, doc *domain.Document) ([]domain.Chunk, error)

	// Names lists the stages in the order they run.
	Names() []string
}
