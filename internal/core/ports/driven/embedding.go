package driven

import "context"

// EmbeddingService turns chunk text and questions into vectors. Every vector
// from one service has the same width, and a trip's chunks and its queries
// must come from the same model for similarity to mean anything.
//
// Errors are transient by default. The ingestion service retries them with
// backoff and then fails the document with domain.ErrEmbeddingProvider.
type EmbeddingService interface {
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per input, in input order. Providers
	// with request size limits split the batch themselves.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions is the vector width, or zero while it is still unknown.
	Dimensions() int

	ModelName() string

	// Ping checks the provider is reachable without embedding anything.
	Ping(ctx context.Context) error

	Close() error
}
