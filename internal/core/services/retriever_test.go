package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripsync/tripctx/internal/adapters/driven/storage/memory"
	"github.com/tripsync/tripctx/internal/core/domain"
	"github.com/tripsync/tripctx/internal/core/ports/driven"
	"github.com/tripsync/tripctx/internal/postprocessors"
)

type retrievalFixture struct {
	ingest    *IngestionService
	retriever *RetrieverService
	members   *memory.MembershipStore
	embedder  *vocabEmbedder
	clock     *fixedClock
}

func newRetrievalFixture(t *testing.T) *retrievalFixture {
	t.Helper()
	members := newMembers(t, []string{tripA + "/" + alice, tripB + "/" + alice, tripB + "/" + bob})
	store := memory.NewDocumentStore(members)
	embedder := newVocabEmbedder("flight", "departs", "gate", "hotel", "check", "dinner", "time", "museum")
	clock := newClock(baseTime)

	ingest := NewIngestionService(store, members, embedder, postprocessors.NewDefaultPipeline(0, 0),
		IngestionConfig{Retry: noRetry})
	ingest.SetClock(clock.Now)

	cfg := DefaultRetrieverConfig()
	cfg.Retry = noRetry
	return &retrievalFixture{
		ingest:    ingest,
		retriever: NewRetrieverService(members, store, embedder, cfg),
		members:   members,
		embedder:  embedder,
		clock:     clock,
	}
}

func (f *retrievalFixture) add(t *testing.T, tripID, text string) *domain.Document {
	t.Helper()
	f.clock.Advance(time.Second)
	req := textRequest(text)
	req.TripID = tripID
	doc, err := f.ingest.Ingest(context.Background(), req)
	require.NoError(t, err)
	return doc
}

func TestRetrieverService_FlightScenario(t *testing.T) {
	f := newRetrievalFixture(t)
	ctx := context.Background()

	d1 := f.add(t, tripA, "Flight departs 9am from gate 12")
	f.add(t, tripA, "Hotel check in opens at 3pm")
	f.add(t, tripA, "Museum closes early on Mondays")

	results, err := f.retriever.Retrieve(ctx, tripA, alice, "what time is the flight", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, d1.ID, results[0].Document.ID)
	assert.Contains(t, results[0].Chunk.Text, "gate 12")
	assert.Greater(t, results[0].Score, results[len(results)-1].Score)

	empty, err := f.retriever.Retrieve(ctx, tripB, alice, "what time is the flight", 5)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestRetrieverService_RoundTrip(t *testing.T) {
	f := newRetrievalFixture(t)
	text := "Dinner at the museum restaurant, check the hotel shuttle"
	unrelated := f.add(t, tripA, "Flight departs from gate 4")
	target := f.add(t, tripA, text)

	results, err := f.retriever.Retrieve(context.Background(), tripA, alice, text, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, target.ID, results[0].Document.ID)
	assert.Equal(t, unrelated.ID, results[1].Document.ID)
	assert.InDelta(t, 1.0, results[0].SemanticScore, 1e-6)
	assert.InDelta(t, 1.0, results[0].LexicalScore, 1e-6)
}

func TestRetrieverService_Deterministic(t *testing.T) {
	f := newRetrievalFixture(t)
	for _, text := range []string{
		"Flight departs at dawn",
		"Flight departs at dusk",
		"Gate changes are posted at the hotel",
		"Flight and hotel bundle",
		"Dinner after the flight",
	} {
		f.add(t, tripA, text)
	}

	first, err := f.retriever.Retrieve(context.Background(), tripA, alice, "flight departs", 3)
	require.NoError(t, err)
	require.Len(t, first, 3)

	for i := 0; i < 10; i++ {
		again, err := f.retriever.Retrieve(context.Background(), tripA, alice, "flight departs", 3)
		require.NoError(t, err)
		require.Len(t, again, len(first))
		for j := range first {
			assert.Equal(t, first[j].Chunk.ID, again[j].Chunk.ID)
			assert.Equal(t, first[j].Score, again[j].Score)
		}
	}
}

func TestRetrieverService_AccessDenied(t *testing.T) {
	f := newRetrievalFixture(t)
	f.add(t, tripA, "Flight departs 9am from gate 12")
	require.NoError(t, f.members.SetMembership(context.Background(), domain.Membership{
		TripID: tripA, UserID: carol, Status: domain.MembershipRemoved,
	}))

	for _, caller := range []string{bob, carol, "", "stranger"} {
		results, err := f.retriever.Retrieve(context.Background(), tripA, caller, "flight", 5)
		assert.ErrorIs(t, err, domain.ErrAccessDenied, caller)
		assert.Nil(t, results)
	}
	assert.Zero(t, f.embedder.embedCalls.Load(), "denied callers never reach the provider")
}

func TestRetrieverService_EmptyQuery(t *testing.T) {
	f := newRetrievalFixture(t)
	f.add(t, tripA, "Flight departs 9am")

	results, err := f.retriever.Retrieve(context.Background(), tripA, alice, "   ", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, f.embedder.embedCalls.Load())
}

func TestRetrieverService_DefaultK(t *testing.T) {
	f := newRetrievalFixture(t)
	for i := 0; i < 8; i++ {
		f.add(t, tripA, "Flight departs soon")
	}

	results, err := f.retriever.Retrieve(context.Background(), tripA, alice, "flight", 0)
	require.NoError(t, err)
	assert.Len(t, results, defaultK)
}

func TestRetrieverService_ExcludesDeleted(t *testing.T) {
	f := newRetrievalFixture(t)
	doc := f.add(t, tripA, "Flight departs 9am")
	require.NoError(t, f.ingest.Delete(context.Background(), tripA, alice, doc.ID))

	results, err := f.retriever.Retrieve(context.Background(), tripA, alice, "flight", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetrieverService_EmbeddingFailure(t *testing.T) {
	f := newRetrievalFixture(t)
	f.embedder.err = errors.New("503")

	_, err := f.retriever.Retrieve(context.Background(), tripA, alice, "flight", 5)
	assert.ErrorIs(t, err, domain.ErrEmbeddingProvider)
}

func TestRetrieverService_Rank(t *testing.T) {
	r := NewRetrieverService(nil, nil, nil, RetrieverConfig{SemanticWeight: 1, LexicalWeight: 1})
	older := domain.Document{ID: "d1", Status: domain.DocumentReady, CreatedAt: baseTime}
	newer := domain.Document{ID: "d2", Status: domain.DocumentReady, CreatedAt: baseTime.Add(time.Hour)}
	pending := domain.Document{ID: "d3", Status: domain.DocumentPending, CreatedAt: baseTime}

	candidates := []driven.ChunkCandidate{
		{Chunk: domain.Chunk{ID: "c1", Position: 1, Text: "gate"}, Document: older, Similarity: 0.5},
		{Chunk: domain.Chunk{ID: "c2", Position: 0, Text: "gate"}, Document: older, Similarity: 0.5},
		{Chunk: domain.Chunk{ID: "c3", Text: "gate"}, Document: newer, Similarity: 0.5},
		{Chunk: domain.Chunk{ID: "c4", Text: "gate"}, Document: pending, Similarity: 0.9},
		{Chunk: domain.Chunk{ID: "c5", Text: "other"}, Document: older, Similarity: -0.4},
	}

	results := r.rank(candidates, []string{"gate"})
	require.Len(t, results, 4)

	ids := []string{results[0].Chunk.ID, results[1].Chunk.ID, results[2].Chunk.ID, results[3].Chunk.ID}
	assert.Equal(t, []string{"c3", "c2", "c1", "c5"}, ids)
	assert.InDelta(t, 0.75, results[0].Score, 1e-9)
	assert.Equal(t, 0.0, results[3].Score, "negative similarity clamps to zero")
}
