package driving

import (
	"context"
	"time"

	"github.com/tripsync/tripctx/internal/core/domain"
)

// IngestRequest is raw text to add to a trip's knowledge base.
type IngestRequest struct {
	TripID     string
	CallerID   string
	Title      string
	SourceType domain.SourceType

	// URI is the original location for uploads and chat links.
	URI     string
	RawText string
}

// IngestionService adds documents to trip knowledge bases.
// Every operation requires the caller to be an active trip member.
type IngestionService interface {
	// Ingest chunks, embeds and stores text. The returned document is ready,
	// or failed with the error that caused it.
	Ingest(ctx context.Context, req IngestRequest) (*domain.Document, error)

	// IngestFile normalises an uploaded file and ingests it.
	IngestFile(ctx context.Context, tripID, callerID, path string) (*domain.Document, error)

	// IngestLink fetches a chat link and ingests its readable text.
	IngestLink(ctx context.Context, tripID, callerID, rawURL string) (*domain.Document, error)

	// List returns the trip's documents, newest first.
	List(ctx context.Context, tripID, callerID string, filter domain.DocumentFilter) ([]domain.Document, error)

	// Get returns one of the trip's documents.
	Get(ctx context.Context, tripID, callerID, documentID string) (*domain.Document, error)

	// Delete soft-deletes a document so it is no longer retrieved.
	Delete(ctx context.Context, tripID, callerID, documentID string) error

	// PurgeFailed removes failed documents and their orphaned chunks
	// that are older than olderThan.
	PurgeFailed(ctx context.Context, olderThan time.Duration) (int, error)
}
