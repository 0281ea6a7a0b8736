package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// SourceType identifies how a document entered the trip knowledge base.
type SourceType string

// Supported source types.
const (
	// SourceTypeUpload is a file uploaded by a trip member.
	SourceTypeUpload SourceType = "upload"

	// SourceTypeChatLink is a web page linked from trip chat.
	SourceTypeChatLink SourceType = "chat-link"

	// SourceTypeManual is text entered directly.
	SourceTypeManual SourceType = "manual"
)

// IsValid returns true if the source type is recognised.
func (s SourceType) IsValid() bool {
	switch s {
	case SourceTypeUpload, SourceTypeChatLink, SourceTypeManual:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (s SourceType) String() string {
	return string(s)
}

// DocumentStatus tracks a document through the ingestion pipeline.
type DocumentStatus string

// Ingestion statuses, in pipeline order.
const (
	DocumentPending  DocumentStatus = "pending"
	DocumentChunked  DocumentStatus = "chunked"
	DocumentEmbedded DocumentStatus = "embedded"
	DocumentReady    DocumentStatus = "ready"
	DocumentFailed   DocumentStatus = "failed"
)

// IsValid returns true if the status is recognised.
func (s DocumentStatus) IsValid() bool {
	switch s {
	case DocumentPending, DocumentChunked, DocumentEmbedded, DocumentReady, DocumentFailed:
		return true
	default:
		return false
	}
}

// IsTerminal returns true once the pipeline has finished with the document.
func (s DocumentStatus) IsTerminal() bool {
	return s == DocumentReady || s == DocumentFailed
}

// CanTransitionTo reports whether moving from s to next is a legal pipeline step.
// Any non-terminal status may fail; ready and failed documents never change status.
func (s DocumentStatus) CanTransitionTo(next DocumentStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == DocumentFailed {
		return true
	}
	switch s {
	case DocumentPending:
		return next == DocumentChunked
	case DocumentChunked:
		return next == DocumentEmbedded
	case DocumentEmbedded:
		return next == DocumentReady
	default:
		return false
	}
}

// Document is a free-form trip document in the knowledge base.
type Document struct {
	// ID is a time-ordered unique identifier (ULID).
	ID string

	// TripID is the owning trip.
	TripID string

	// Title is the human-readable title.
	Title string

	// SourceType records how the document was ingested.
	SourceType SourceType

	// URI is the original location for uploads and chat links.
	URI string

	// RawText is the full normalised text before chunking.
	RawText string

	// Status is the ingestion status.
	Status DocumentStatus

	// FailureReason is set when Status is failed.
	FailureReason string

	// CreatedBy is the member who ingested the document.
	CreatedBy string

	CreatedAt time.Time
	UpdatedAt time.Time

	// DeletedAt is set once the document is soft-deleted.
	DeletedAt *time.Time
}

// IsRetrievable returns true if the document's chunks may be served.
// Partially ingested and soft-deleted documents are never retrievable.
func (d *Document) IsRetrievable() bool {
	return d.Status == DocumentReady && d.DeletedAt == nil
}

// Chunk is a bounded-length slice of a document, the unit of retrieval.
type Chunk struct {
	// ID is the unique identifier for the chunk.
	ID string

	// DocumentID links to the parent Document.
	DocumentID string

	// Position is the ordinal position within the document.
	Position int

	// Text is the chunk content.
	Text string

	// TokenCount is the estimated number of model tokens in Text.
	TokenCount int

	// Embedding is the vector representation for semantic search.
	Embedding []float32
}

// CharsPerToken is the rough characters-per-token ratio used for estimates.
const CharsPerToken = 4

// EstimateTokens returns a rough token count for text (never below 1 for non-empty text).
func EstimateTokens(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	n := utf8.RuneCountInString(text)
	return (n + CharsPerToken - 1) / CharsPerToken
}

// RetrievedChunk is one ranked retrieval result.
type RetrievedChunk struct {
	Chunk    Chunk
	Document Document

	// Score is the fused ranking score in [0,1].
	Score float64

	// SemanticScore is the clamped cosine similarity to the query.
	SemanticScore float64

	// LexicalScore is the fraction of query terms found in the chunk.
	LexicalScore float64
}

// DocumentFilter narrows document listings.
type DocumentFilter struct {
	// Status restricts results to one status. Empty means any.
	Status DocumentStatus

	// IncludeDeleted includes soft-deleted documents.
	IncludeDeleted bool
}

// RawDocument is uploaded content before normalisation.
type RawDocument struct {
	// URI is the original location (file path or URL).
	URI string

	// MIMEType selects the normaliser.
	MIMEType string

	Content []byte
}
