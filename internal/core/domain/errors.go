package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates an unknown source type or MIME type.
	ErrUnsupportedType = errors.New("unsupported type")

	// Authorisation and quota errors. Both are fatal and never retried.

	// ErrAccessDenied indicates the caller has no active membership in the trip.
	ErrAccessDenied = errors.New("access denied")

	// ErrQuotaExceeded indicates the caller's daily query quota is used up.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// Degradable errors.

	// ErrSourceUnavailable indicates a structured trip data source failed or timed out.
	// The affected section is omitted rather than failing the request.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrEmbeddingProvider indicates the embedding provider failed.
	// It is transient: callers retry with backoff before surfacing it.
	ErrEmbeddingProvider = errors.New("embedding provider error")

	// ErrEmbeddingUnavailable indicates no embedding service is configured.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrRateLimited indicates a provider API rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")

	// ErrContextUnavailable indicates neither retrieval nor aggregation
	// produced any usable context for a query.
	ErrContextUnavailable = errors.New("context unavailable")
)

// ErrCacheCompute indicates a cache recomputation failed with no stale entry
// to fall back on. It belongs to the source-unavailable class.
var ErrCacheCompute = &cacheComputeError{}

type cacheComputeError struct{}

func (*cacheComputeError) Error() string { return "cache compute failure" }

// Is reports ErrCacheCompute as a member of the ErrSourceUnavailable class.
func (*cacheComputeError) Is(target error) bool {
	return target == ErrSourceUnavailable
}

// IsRetryable returns true for errors a caller may retry with backoff.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrEmbeddingProvider) || errors.Is(err, ErrRateLimited)
}

// IsFatal returns true for errors that must reach the user unchanged.
func IsFatal(err error) bool {
	return errors.Is(err, ErrAccessDenied) || errors.Is(err, ErrQuotaExceeded)
}
