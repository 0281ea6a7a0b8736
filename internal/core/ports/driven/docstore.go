package driven

import (
	"context"
	"time"

	"github.com/tripsync/tripctx/internal/core/domain"
)

// DocumentStore persists documents and chunks.
// Chunks are append-only; they are removed only together with their document.
type DocumentStore interface {
	// SaveDocument stores or updates a document.
	SaveDocument(ctx context.Context, doc *domain.Document) error

	// UpdateStatus moves a document to a new ingestion status.
	// reason is recorded for failed documents; at becomes UpdatedAt.
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, reason string, at time.Time) error

	// SaveChunks stores a batch of chunks for a document.
	SaveChunks(ctx context.Context, chunks []domain.Chunk) error

	// GetDocument retrieves a document by ID.
	GetDocument(ctx context.Context, id string) (*domain.Document, error)

	// GetChunks retrieves all chunks for a document ordered by position.
	GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error)

	// ListDocuments returns a trip's documents, newest first.
	ListDocuments(ctx context.Context, tripID string, filter domain.DocumentFilter) ([]domain.Document, error)

	// SoftDeleteDocument hides a document from retrieval.
	SoftDeleteDocument(ctx context.Context, id string, at time.Time) error

	// PurgeFailed hard-deletes failed documents last updated before cutoff,
	// cascading to their orphaned chunks. Returns the number of documents removed.
	PurgeFailed(ctx context.Context, cutoff time.Time) (int, error)
}
