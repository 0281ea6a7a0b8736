package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripsync/tripctx/internal/adapters/driven/storage/memory"
	"github.com/tripsync/tripctx/internal/core/domain"
	"github.com/tripsync/tripctx/internal/core/ports/driven"
	"github.com/tripsync/tripctx/internal/core/ports/driving"
	"github.com/tripsync/tripctx/internal/postprocessors"
)

type ingestionFixture struct {
	svc      *IngestionService
	store    *memory.DocumentStore
	embedder *vocabEmbedder
	clock    *fixedClock
}

func newIngestionFixture(t *testing.T, batchSize int) *ingestionFixture {
	t.Helper()
	members := newMembers(t, []string{tripA + "/" + alice, tripB + "/" + bob},
		domain.Membership{TripID: tripA, UserID: carol, Status: domain.MembershipPending})
	store := memory.NewDocumentStore(members)
	embedder := newVocabEmbedder("flight", "gate", "hotel", "dinner")
	clock := newClock(baseTime)

	svc := NewIngestionService(store, members, embedder, postprocessors.NewDefaultPipeline(40, 10),
		IngestionConfig{BatchSize: batchSize, Retry: noRetry})
	svc.SetClock(clock.Now)
	return &ingestionFixture{svc: svc, store: store, embedder: embedder, clock: clock}
}

func textRequest(text string) driving.IngestRequest {
	return driving.IngestRequest{
		TripID:     tripA,
		CallerID:   alice,
		SourceType: domain.SourceTypeManual,
		RawText:    text,
	}
}

func TestIngestionService_Ingest(t *testing.T) {
	f := newIngestionFixture(t, 2)
	ctx := context.Background()
	text := "Flight departs 9am from gate 12.\nHotel check-in is after 3pm. Dinner booked at eight for everyone."

	doc, err := f.svc.Ingest(ctx, textRequest(text))
	require.NoError(t, err)

	assert.Equal(t, domain.DocumentReady, doc.Status)
	assert.Equal(t, "Flight departs 9am from gate 12.", doc.Title)
	assert.Equal(t, alice, doc.CreatedBy)
	assert.Len(t, doc.ID, 26, "ULID")
	assert.Equal(t, baseTime, doc.CreatedAt)

	stored, err := f.store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentReady, stored.Status)

	chunks, err := f.store.GetChunks(ctx, doc.ID)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 2)
	for i, c := range chunks {
		assert.Equal(t, i, c.Position)
		assert.Equal(t, doc.ID, c.DocumentID)
		assert.Len(t, c.Embedding, 4)
		assert.Positive(t, c.TokenCount)
	}

	wantBatches := (len(chunks) + 1) / 2
	assert.Equal(t, int32(wantBatches), f.embedder.batchCalls.Load())
}

func TestIngestionService_Ingest_Validation(t *testing.T) {
	f := newIngestionFixture(t, 0)

	tests := []struct {
		name   string
		mutate func(*driving.IngestRequest)
	}{
		{"missing trip", func(r *driving.IngestRequest) { r.TripID = "" }},
		{"missing caller", func(r *driving.IngestRequest) { r.CallerID = " " }},
		{"unknown source", func(r *driving.IngestRequest) { r.SourceType = "fax" }},
		{"empty text", func(r *driving.IngestRequest) { r.RawText = "  \n" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := textRequest("Flight at nine")
			tt.mutate(&req)
			_, err := f.svc.Ingest(context.Background(), req)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestIngestionService_Ingest_AccessDenied(t *testing.T) {
	f := newIngestionFixture(t, 0)

	for _, caller := range []string{bob, carol, "stranger"} {
		req := textRequest("Flight at nine")
		req.CallerID = caller
		_, err := f.svc.Ingest(context.Background(), req)
		assert.ErrorIs(t, err, domain.ErrAccessDenied, caller)
	}

	docs, err := f.store.ListDocuments(context.Background(), tripA, domain.DocumentFilter{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestIngestionService_Ingest_EmbeddingFailure(t *testing.T) {
	f := newIngestionFixture(t, 1)
	f.embedder.err = errors.New("provider 503")
	f.embedder.failBatches.Store(100)

	doc, err := f.svc.Ingest(context.Background(), textRequest("Flight departs 9am from gate 12. Hotel check-in after 3pm."))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEmbeddingProvider)
	require.NotNil(t, doc)
	assert.Equal(t, domain.DocumentFailed, doc.Status)

	stored, err := f.store.GetDocument(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentFailed, stored.Status)
	assert.Contains(t, stored.FailureReason, "provider 503")
}

func TestIngestionService_Ingest_RetriesTransientFailure(t *testing.T) {
	f := newIngestionFixture(t, 16)
	f.svc.cfg.Retry = RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond}
	f.embedder.err = errors.New("timeout")
	f.embedder.failBatches.Store(2)

	doc, err := f.svc.Ingest(context.Background(), textRequest("Dinner at eight"))
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentReady, doc.Status)
	assert.Equal(t, int32(3), f.embedder.batchCalls.Load())
}

func TestIngestionService_Ingest_FatalErrorNotRetried(t *testing.T) {
	f := newIngestionFixture(t, 16)
	f.svc.cfg.Retry = RetryPolicy{MaxRetries: 5, BaseDelay: time.Millisecond}
	f.embedder.err = domain.ErrAccessDenied
	f.embedder.failBatches.Store(10)

	_, err := f.svc.Ingest(context.Background(), textRequest("Dinner at eight"))
	require.Error(t, err)
	assert.Equal(t, int32(1), f.embedder.batchCalls.Load())
}

func TestIngestionService_Ingest_NoEmbedder(t *testing.T) {
	members := newMembers(t, []string{tripA + "/" + alice})
	svc := NewIngestionService(memory.NewDocumentStore(members), members, nil, postprocessors.NewDefaultPipeline(0, 0), IngestionConfig{})

	_, err := svc.Ingest(context.Background(), textRequest("text"))
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
}

func TestIngestionService_IngestFile(t *testing.T) {
	f := newIngestionFixture(t, 0)
	dir := t.TempDir()

	t.Run("plain text falls back without normaliser", func(t *testing.T) {
		path := filepath.Join(dir, "itinerary.txt")
		require.NoError(t, os.WriteFile(path, []byte("   \nFlight departs 9am from gate 12"), 0o600))

		doc, err := f.svc.IngestFile(context.Background(), tripA, alice, path)
		require.NoError(t, err)
		assert.Equal(t, "itinerary", doc.Title)
		assert.Equal(t, domain.SourceTypeUpload, doc.SourceType)
		assert.Equal(t, path, doc.URI)
	})

	t.Run("binary without normaliser is unsupported", func(t *testing.T) {
		path := filepath.Join(dir, "ticket.bin")
		require.NoError(t, os.WriteFile(path, []byte{0xff, 0xfe, 0x00, 0x80}, 0o600))

		_, err := f.svc.IngestFile(context.Background(), tripA, alice, path)
		assert.ErrorIs(t, err, domain.ErrUnsupportedType)
	})

	t.Run("normaliser is used", func(t *testing.T) {
		path := filepath.Join(dir, "notes.md")
		require.NoError(t, os.WriteFile(path, []byte("# Dinner\n\n**Booked** at eight"), 0o600))

		f.svc.SetNormalisers(stubRegistry{"text/markdown": stubNormaliser{title: "Dinner", text: "Dinner booked at eight"}})
		defer f.svc.SetNormalisers(nil)

		doc, err := f.svc.IngestFile(context.Background(), tripA, alice, path)
		require.NoError(t, err)
		assert.Equal(t, "Dinner", doc.Title)
		assert.Equal(t, "Dinner booked at eight", doc.RawText)
	})

	t.Run("directory rejected", func(t *testing.T) {
		_, err := f.svc.IngestFile(context.Background(), tripA, alice, dir)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("non member rejected before reading", func(t *testing.T) {
		_, err := f.svc.IngestFile(context.Background(), tripA, bob, filepath.Join(dir, "missing.txt"))
		assert.ErrorIs(t, err, domain.ErrAccessDenied)
	})
}

type stubNormaliser struct {
	title, text string
}

func (n stubNormaliser) SupportedMIMETypes() []string { return nil }
func (n stubNormaliser) Priority() int                { return 0 }
func (n stubNormaliser) Normalise(_ context.Context, _ *domain.RawDocument) (*driven.NormaliseResult, error) {
	return &driven.NormaliseResult{Title: n.title, Text: n.text}, nil
}

type stubRegistry map[string]driven.Normaliser

func (r stubRegistry) Get(mime string) driven.Normaliser {
	n, ok := r[mime]
	if !ok {
		return nil
	}
	return n
}

type stubFetcher struct {
	page *driven.FetchedPage
	err  error
}

func (f stubFetcher) Fetch(_ context.Context, _ string) (*driven.FetchedPage, error) {
	return f.page, f.err
}

func TestIngestionService_IngestLink(t *testing.T) {
	f := newIngestionFixture(t, 0)
	ctx := context.Background()

	_, err := f.svc.IngestLink(ctx, tripA, alice, "https://example.com/guide")
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)

	f.svc.SetLinkFetcher(stubFetcher{page: &driven.FetchedPage{
		URL:   "https://example.com/guide",
		Title: "Lisbon guide",
		Text:  "Take the tram to the hotel after the flight.",
	}})

	doc, err := f.svc.IngestLink(ctx, tripA, alice, "https://example.com/guide")
	require.NoError(t, err)
	assert.Equal(t, domain.SourceTypeChatLink, doc.SourceType)
	assert.Equal(t, "Lisbon guide", doc.Title)
	assert.Equal(t, "https://example.com/guide", doc.URI)

	_, err = f.svc.IngestLink(ctx, tripA, "stranger", "https://example.com/guide")
	assert.ErrorIs(t, err, domain.ErrAccessDenied)
}

func TestIngestionService_ListGetDelete(t *testing.T) {
	f := newIngestionFixture(t, 0)
	ctx := context.Background()

	first, err := f.svc.Ingest(ctx, textRequest("Flight departs 9am"))
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	second, err := f.svc.Ingest(ctx, textRequest("Hotel check-in at 3pm"))
	require.NoError(t, err)

	docs, err := f.svc.List(ctx, tripA, alice, domain.DocumentFilter{})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, second.ID, docs[0].ID)

	got, err := f.svc.Get(ctx, tripA, alice, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	_, err = f.svc.Get(ctx, tripB, bob, first.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound, "documents of other trips are invisible")

	_, err = f.svc.List(ctx, tripA, bob, domain.DocumentFilter{})
	assert.ErrorIs(t, err, domain.ErrAccessDenied)

	require.NoError(t, f.svc.Delete(ctx, tripA, alice, first.ID))
	docs, err = f.svc.List(ctx, tripA, alice, domain.DocumentFilter{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, second.ID, docs[0].ID)

	assert.ErrorIs(t, f.svc.Delete(ctx, tripB, bob, second.ID), domain.ErrNotFound)
}

func TestIngestionService_PurgeFailed(t *testing.T) {
	f := newIngestionFixture(t, 16)
	ctx := context.Background()
	f.embedder.err = errors.New("down")
	f.embedder.failBatches.Store(1)

	failed, err := f.svc.Ingest(ctx, textRequest("Dinner at eight"))
	require.Error(t, err)

	n, err := f.svc.PurgeFailed(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n, "too recent")

	f.clock.Advance(2 * time.Hour)
	n, err = f.svc.PurgeFailed(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = f.store.GetDocument(ctx, failed.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.PurgeFailed(ctx, -time.Second)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDeriveTitle(t *testing.T) {
	assert.Equal(t, "Given", deriveTitle("  Given ", "body"))
	assert.Equal(t, "First line", deriveTitle("", "\n\n  First line \nsecond"))

	long := deriveTitle(strings.Repeat("a", 200), "")
	assert.Equal(t, maxTitleRunes, len([]rune(long)))
	assert.True(t, strings.HasSuffix(long, "..."))
}

func TestDetectMIMEType(t *testing.T) {
	tests := map[string]string{
		"notes.md":     "text/markdown",
		"NOTES.MD":     "text/markdown",
		"plan.txt":     "text/plain",
		"page.htm":     "text/html",
		"booking.eml":  "message/rfc822",
		"no-extension": "text/plain",
	}
	for path, want := range tests {
		assert.Equal(t, want, DetectMIMEType(path), path)
	}
}
