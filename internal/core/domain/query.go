package domain

import (
	"context"
	"errors"
	"strings"
)

// QueryRequest is one retrieval query from the assistant's request handler.
type QueryRequest struct {
	TripID   string
	CallerID string
	Query    string

	// Tier overrides the caller's assigned tier. Only operator surfaces set
	// it; empty means the tier configured for the caller, or free.
	Tier Tier

	// K is the number of chunks to retrieve. Zero means the configured default.
	K int
}

// Validate checks required fields.
func (r QueryRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.TripID) == "":
		return errors.Join(ErrInvalidInput, errors.New("trip id is required"))
	case strings.TrimSpace(r.CallerID) == "":
		return errors.Join(ErrInvalidInput, errors.New("caller id is required"))
	case strings.TrimSpace(r.Query) == "":
		return errors.Join(ErrInvalidInput, errors.New("query is required"))
	case r.K < 0:
		return errors.Join(ErrInvalidInput, errors.New("k must not be negative"))
	case r.Tier != "" && !r.Tier.IsValid():
		return errors.Join(ErrInvalidInput, errors.New("unknown tier"))
	}
	return nil
}

// QueryResult is the assembled context for one query.
type QueryResult struct {
	Prompt string
	Chunks []RetrievedChunk

	// Record is nil when structured context could not be produced.
	Record *AggregateRecord

	Usage UsageDecision

	// Degraded is true when retrieval or aggregation failed and the prompt
	// was assembled from what remained.
	Degraded bool
}

// ErrorKind classifies a user-visible query failure.
type ErrorKind string

// Error kinds exposed to callers.
const (
	ErrorKindAccessDenied       ErrorKind = "access_denied"
	ErrorKindQuotaExceeded      ErrorKind = "quota_exceeded"
	ErrorKindContextUnavailable ErrorKind = "context_unavailable"
	ErrorKindInvalidInput       ErrorKind = "invalid_input"
	ErrorKindCancelled          ErrorKind = "cancelled"
	ErrorKindInternal           ErrorKind = "internal"
)

// QueryError is the structured error returned by the retrieval query call.
type QueryError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *QueryError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// ToQueryError maps an error to its structured form.
// Internal details are not exposed for unclassified errors.
func ToQueryError(err error) *QueryError {
	if err == nil {
		return nil
	}
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe
	}
	switch {
	case errors.Is(err, ErrAccessDenied):
		return &QueryError{Kind: ErrorKindAccessDenied, Message: "caller is not an active member of this trip"}
	case errors.Is(err, ErrQuotaExceeded):
		return &QueryError{Kind: ErrorKindQuotaExceeded, Message: "daily query quota exceeded"}
	case errors.Is(err, ErrInvalidInput):
		return &QueryError{Kind: ErrorKindInvalidInput, Message: err.Error()}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &QueryError{Kind: ErrorKindCancelled, Message: err.Error()}
	case errors.Is(err, ErrContextUnavailable):
		return &QueryError{Kind: ErrorKindContextUnavailable, Message: "no trip context could be produced"}
	default:
		return &QueryError{Kind: ErrorKindInternal, Message: "internal error"}
	}
}
