package services

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/tripsync/tripctx/internal/core/domain"
	"github.com/tripsync/tripctx/internal/core/ports/driven"
	"github.com/tripsync/tripctx/internal/core/ports/driving"
	"github.com/tripsync/tripctx/internal/logger"
)

// Ensure IngestionService implements the interface.
var _ driving.IngestionService = (*IngestionService)(nil)

const (
	defaultBatchSize = 16
	maxTitleRunes    = 80
	maxUploadBytes   = 20 << 20
)

// IngestionConfig tunes the ingestion pipeline.
type IngestionConfig struct {
	// BatchSize is the number of chunks per embedding request.
	BatchSize int

	// Retry bounds embedding retries per batch.
	Retry RetryPolicy
}

// IngestionService chunks, embeds and stores trip documents.
type IngestionService struct {
	docStore    driven.DocumentStore
	members     driven.MembershipOracle
	embedder    driven.EmbeddingService
	pipeline    driven.PostProcessorPipeline
	normalisers driven.NormaliserRegistry
	links       driven.LinkFetcher
	cfg         IngestionConfig
	now         func() time.Time
}

// NewIngestionService creates a new ingestion service.
func NewIngestionService(
	docStore driven.DocumentStore,
	members driven.MembershipOracle,
	embedder driven.EmbeddingService,
	pipeline driven.PostProcessorPipeline,
	cfg IngestionConfig,
) *IngestionService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	return &IngestionService{
		docStore: docStore,
		members:  members,
		embedder: embedder,
		pipeline: pipeline,
		cfg:      cfg,
		now:      time.Now,
	}
}

// SetNormalisers enables file uploads of non-plain-text types.
func (s *IngestionService) SetNormalisers(registry driven.NormaliserRegistry) {
	s.normalisers = registry
}

// SetLinkFetcher enables chat-link ingestion.
func (s *IngestionService) SetLinkFetcher(fetcher driven.LinkFetcher) {
	s.links = fetcher
}

// SetClock overrides the time source.
func (s *IngestionService) SetClock(now func() time.Time) {
	s.now = now
}

// Ingest chunks, embeds and stores text for a trip.
func (s *IngestionService) Ingest(ctx context.Context, req driving.IngestRequest) (*domain.Document, error) {
	logger.Section("Ingestion")

	if err := validateIngestRequest(req); err != nil {
		return nil, err
	}
	if err := requireActiveMember(ctx, s.members, req.TripID, req.CallerID); err != nil {
		return nil, err
	}
	if s.embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}

	now := s.now()
	doc := &domain.Document{
		ID:         ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		TripID:     req.TripID,
		Title:      deriveTitle(req.Title, req.RawText),
		SourceType: req.SourceType,
		URI:        req.URI,
		RawText:    req.RawText,
		Status:     domain.DocumentPending,
		CreatedBy:  req.CallerID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	logger.Debug("Document %s: trip=%s source=%s title=%q", doc.ID, doc.TripID, doc.SourceType, doc.Title)

	if err := s.docStore.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}

	chunks, err := s.pipeline.Process(ctx, doc)
	if err != nil {
		return doc, s.fail(ctx, doc, fmt.Errorf("chunk: %w", err))
	}
	if len(chunks) == 0 {
		return doc, s.fail(ctx, doc, fmt.Errorf("chunk: %w: no content", domain.ErrInvalidInput))
	}
	logger.Debug("Chunked into %d chunks via %s", len(chunks), strings.Join(s.pipeline.Names(), " > "))
	if err := s.advance(ctx, doc, domain.DocumentChunked); err != nil {
		return doc, s.fail(ctx, doc, err)
	}

	if err := s.embedAndStore(ctx, chunks); err != nil {
		return doc, s.fail(ctx, doc, err)
	}
	if err := s.advance(ctx, doc, domain.DocumentEmbedded); err != nil {
		return doc, s.fail(ctx, doc, err)
	}
	if err := s.advance(ctx, doc, domain.DocumentReady); err != nil {
		return doc, s.fail(ctx, doc, err)
	}

	logger.Info("Document %s ready (%d chunks)", doc.ID, len(chunks))
	return doc, nil
}

// embedAndStore embeds chunks batch by batch and writes each batch as soon as
// it is embedded. A failed batch leaves earlier batches in place.
func (s *IngestionService) embedAndStore(ctx context.Context, chunks []domain.Chunk) error {
	for start := 0; start < len(chunks); start += s.cfg.BatchSize {
		end := start + s.cfg.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i := range batch {
			texts[i] = batch[i].Text
		}

		var vectors [][]float32
		op := fmt.Sprintf("embed batch %d-%d", start, end-1)
		err := retry(ctx, s.cfg.Retry, op, func(ctx context.Context) error {
			var embedErr error
			vectors, embedErr = s.embedder.EmbedBatch(ctx, texts)
			if embedErr == nil && len(vectors) != len(texts) {
				embedErr = fmt.Errorf("got %d vectors for %d texts", len(vectors), len(texts))
			}
			return embedErr
		})
		if err != nil {
			return fmt.Errorf("%s: %w: %w", op, domain.ErrEmbeddingProvider, err)
		}

		for i := range batch {
			batch[i].Embedding = vectors[i]
		}
		if err := s.docStore.SaveChunks(ctx, batch); err != nil {
			return fmt.Errorf("save chunks: %w", err)
		}
		logger.Debug("Stored chunks %d-%d", start, end-1)
	}
	return nil
}

func (s *IngestionService) advance(ctx context.Context, doc *domain.Document, next domain.DocumentStatus) error {
	if !doc.Status.CanTransitionTo(next) {
		return fmt.Errorf("illegal status transition %s -> %s", doc.Status, next)
	}
	now := s.now()
	if err := s.docStore.UpdateStatus(ctx, doc.ID, next, "", now); err != nil {
		return fmt.Errorf("update status to %s: %w", next, err)
	}
	doc.Status = next
	doc.UpdatedAt = now
	return nil
}

// fail marks the document failed and returns cause. The status write is
// detached from ctx so cancelled ingestions are still recorded as failed.
func (s *IngestionService) fail(ctx context.Context, doc *domain.Document, cause error) error {
	logger.Warn("Document %s failed: %v", doc.ID, cause)

	reason := cause.Error()
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	now := s.now()
	if err := s.docStore.UpdateStatus(writeCtx, doc.ID, domain.DocumentFailed, reason, now); err != nil {
		logger.Error("Marking document %s failed: %v", doc.ID, err)
		return errors.Join(cause, fmt.Errorf("mark failed: %w", err))
	}
	doc.Status = domain.DocumentFailed
	doc.FailureReason = reason
	doc.UpdatedAt = now
	return cause
}

// IngestFile normalises an uploaded file and ingests it.
func (s *IngestionService) IngestFile(ctx context.Context, tripID, callerID, path string) (*domain.Document, error) {
	if err := requireActiveMember(ctx, s.members, tripID, callerID); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat upload: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", domain.ErrInvalidInput, path)
	}
	if info.Size() > maxUploadBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", domain.ErrInvalidInput, path, maxUploadBytes)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}

	raw := &domain.RawDocument{URI: path, MIMEType: DetectMIMEType(path), Content: content}
	title, text, err := s.normalise(ctx, raw)
	if err != nil {
		return nil, err
	}
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	return s.Ingest(ctx, driving.IngestRequest{
		TripID:     tripID,
		CallerID:   callerID,
		Title:      title,
		SourceType: domain.SourceTypeUpload,
		URI:        path,
		RawText:    text,
	})
}

func (s *IngestionService) normalise(ctx context.Context, raw *domain.RawDocument) (title, text string, err error) {
	if s.normalisers != nil {
		if n := s.normalisers.Get(raw.MIMEType); n != nil {
			res, err := n.Normalise(ctx, raw)
			if err != nil {
				return "", "", fmt.Errorf("normalise %s: %w", raw.MIMEType, err)
			}
			return res.Title, res.Text, nil
		}
	}
	if !utf8.Valid(raw.Content) {
		return "", "", fmt.Errorf("%w: %s is not text (%s)", domain.ErrUnsupportedType, raw.URI, raw.MIMEType)
	}
	logger.Debug("No normaliser for %s, ingesting as plain text", raw.MIMEType)
	return "", string(raw.Content), nil
}

// IngestLink fetches a chat link and ingests its readable text.
func (s *IngestionService) IngestLink(ctx context.Context, tripID, callerID, rawURL string) (*domain.Document, error) {
	if err := requireActiveMember(ctx, s.members, tripID, callerID); err != nil {
		return nil, err
	}
	if s.links == nil {
		return nil, fmt.Errorf("%w: link fetching is not configured", domain.ErrUnsupportedType)
	}

	page, err := s.links.Fetch(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("fetch link: %w", err)
	}

	return s.Ingest(ctx, driving.IngestRequest{
		TripID:     tripID,
		CallerID:   callerID,
		Title:      page.Title,
		SourceType: domain.SourceTypeChatLink,
		URI:        page.URL,
		RawText:    page.Text,
	})
}

// List returns the trip's documents, newest first.
func (s *IngestionService) List(
	ctx context.Context, tripID, callerID string, filter domain.DocumentFilter,
) ([]domain.Document, error) {
	if err := requireActiveMember(ctx, s.members, tripID, callerID); err != nil {
		return nil, err
	}
	docs, err := s.docStore.ListDocuments(ctx, tripID, filter)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// Get returns one of the trip's documents. Documents of other trips are not found.
func (s *IngestionService) Get(ctx context.Context, tripID, callerID, documentID string) (*domain.Document, error) {
	if err := requireActiveMember(ctx, s.members, tripID, callerID); err != nil {
		return nil, err
	}
	doc, err := s.docStore.GetDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	if doc.TripID != tripID {
		return nil, fmt.Errorf("get document: %w", domain.ErrNotFound)
	}
	return doc, nil
}

// Delete soft-deletes a document so it is no longer retrieved.
func (s *IngestionService) Delete(ctx context.Context, tripID, callerID, documentID string) error {
	if _, err := s.Get(ctx, tripID, callerID, documentID); err != nil {
		return err
	}
	if err := s.docStore.SoftDeleteDocument(ctx, documentID, s.now()); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	logger.Info("Document %s deleted", documentID)
	return nil
}

// PurgeFailed removes failed documents older than olderThan together with
// their orphaned chunks.
func (s *IngestionService) PurgeFailed(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan < 0 {
		return 0, fmt.Errorf("%w: negative age", domain.ErrInvalidInput)
	}
	cutoff := s.now().Add(-olderThan)
	n, err := s.docStore.PurgeFailed(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge failed documents: %w", err)
	}
	logger.Info("Purged %d failed documents older than %s", n, cutoff.Format(time.RFC3339))
	return n, nil
}

func validateIngestRequest(req driving.IngestRequest) error {
	switch {
	case strings.TrimSpace(req.TripID) == "":
		return fmt.Errorf("%w: trip id is required", domain.ErrInvalidInput)
	case strings.TrimSpace(req.CallerID) == "":
		return fmt.Errorf("%w: caller id is required", domain.ErrInvalidInput)
	case !req.SourceType.IsValid():
		return fmt.Errorf("%w: unknown source type %q", domain.ErrInvalidInput, req.SourceType)
	case strings.TrimSpace(req.RawText) == "":
		return fmt.Errorf("%w: document text is empty", domain.ErrInvalidInput)
	}
	return nil
}

// deriveTitle falls back to the first non-empty line of text.
func deriveTitle(title, text string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		for _, line := range strings.Split(text, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				title = line
				break
			}
		}
	}
	if utf8.RuneCountInString(title) > maxTitleRunes {
		title = string([]rune(title)[:maxTitleRunes-3]) + "..."
	}
	return title
}

// mimeOverrides covers extensions the platform MIME table often lacks.
var mimeOverrides = map[string]string{
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".txt":      "text/plain",
	".html":     "text/html",
	".htm":      "text/html",
	".eml":      "message/rfc822",
	".ics":      "text/calendar",
	".csv":      "text/csv",
	".tsv":      "text/tab-separated-values",
}

// DetectMIMEType guesses a MIME type from a file extension.
func DetectMIMEType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if mt, ok := mimeOverrides[ext]; ok {
		return mt
	}
	if mt := mime.TypeByExtension(ext); mt != "" {
		if i := strings.Index(mt, ";"); i >= 0 {
			mt = mt[:i]
		}
		return mt
	}
	return "text/plain"
}
