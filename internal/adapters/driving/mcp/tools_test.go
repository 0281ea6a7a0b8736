package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripsync/tripctx/internal/core/domain"
)

func TestServer_handleTripContext(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the prompt", func(t *testing.T) {
		svc := &mockContextService{result: &domain.QueryResult{
			Prompt:   "assembled prompt",
			Usage:    domain.UsageDecision{Allowed: true, Remaining: 4},
			Degraded: true,
		}}
		server, err := NewServer(&Ports{Context: svc}, Options{Caller: "alice"})
		require.NoError(t, err)

		res, output, err := server.handleTripContext(ctx, nil, TripContextInput{
			TripID: "trip-1", Query: "where do we meet?", K: 3,
		})

		require.NoError(t, err)
		assert.Nil(t, res)
		assert.Equal(t, "assembled prompt", output.Prompt)
		assert.True(t, output.Degraded)
		assert.Equal(t, 4, output.Remaining)
		assert.Nil(t, output.Error)

		assert.Equal(t, domain.QueryRequest{
			TripID: "trip-1", CallerID: "alice", Query: "where do we meet?", K: 3,
		}, svc.got)
	})

	tests := []struct {
		name string
		err  error
		want domain.ErrorKind
	}{
		{"access denied", fmt.Errorf("retrieve: %w", domain.ErrAccessDenied), domain.ErrorKindAccessDenied},
		{"quota exceeded", domain.ErrQuotaExceeded, domain.ErrorKindQuotaExceeded},
		{"context unavailable", domain.ErrContextUnavailable, domain.ErrorKindContextUnavailable},
		{"internal", errors.New("disk on fire"), domain.ErrorKindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, err := NewServer(&Ports{Context: &mockContextService{err: tt.err}}, Options{})
			require.NoError(t, err)

			res, output, err := server.handleTripContext(ctx, nil, TripContextInput{
				TripID: "trip-1", CallerID: "eve", Query: "q",
			})

			require.NoError(t, err)
			require.NotNil(t, res)
			assert.True(t, res.IsError)
			require.NotNil(t, output.Error)
			assert.Equal(t, tt.want, output.Error.Kind)
			assert.Empty(t, output.Prompt)

			require.Len(t, res.Content, 1)
			text, ok := res.Content[0].(*mcp.TextContent)
			require.True(t, ok)
			var qe domain.QueryError
			require.NoError(t, json.Unmarshal([]byte(text.Text), &qe))
			assert.Equal(t, tt.want, qe.Kind)
			assert.NotContains(t, text.Text, "disk on fire")
		})
	}
}

func TestServer_handleRetrieve(t *testing.T) {
	ctx := context.Background()

	t.Run("returns chunks", func(t *testing.T) {
		retriever := &mockRetrieverService{chunks: []domain.RetrievedChunk{{
			Chunk:    domain.Chunk{ID: "c-1", Text: "Gate B7"},
			Document: domain.Document{ID: "doc-1", Title: "Flights", URI: "flights.pdf"},
			Score:    0.91,
		}}}
		server, err := NewServer(&Ports{Context: &mockContextService{}, Retriever: retriever}, Options{Caller: "alice"})
		require.NoError(t, err)

		_, output, err := server.handleRetrieve(ctx, nil, RetrieveInput{TripID: "trip-1", Query: "gate"})

		require.NoError(t, err)
		assert.Equal(t, 1, output.Count)
		assert.Equal(t, ChunkOutput{
			ChunkID: "c-1", DocumentID: "doc-1", Title: "Flights", URI: "flights.pdf", Text: "Gate B7", Score: 0.91,
		}, output.Chunks[0])
		assert.Equal(t, "alice", retriever.caller)
	})

	t.Run("maps errors", func(t *testing.T) {
		retriever := &mockRetrieverService{err: domain.ErrAccessDenied}
		server, err := NewServer(&Ports{Context: &mockContextService{}, Retriever: retriever}, Options{})
		require.NoError(t, err)

		_, _, err = server.handleRetrieve(ctx, nil, RetrieveInput{TripID: "trip-1", CallerID: "eve", Query: "gate"})

		var qe *domain.QueryError
		require.ErrorAs(t, err, &qe)
		assert.Equal(t, domain.ErrorKindAccessDenied, qe.Kind)
	})
}

func TestServer_handleIngest(t *testing.T) {
	ctx := context.Background()
	doc := &domain.Document{ID: "doc-1", Title: "Notes", Status: domain.DocumentReady}

	newServer := func(t *testing.T, ing *mockIngestionService) *Server {
		t.Helper()
		server, err := NewServer(&Ports{Context: &mockContextService{}, Ingestion: ing}, Options{Caller: "alice"})
		require.NoError(t, err)
		return server
	}

	t.Run("ingests text", func(t *testing.T) {
		ing := &mockIngestionService{document: doc}
		_, output, err := newServer(t, ing).handleIngest(ctx, nil, IngestInput{
			TripID: "trip-1", Title: "Notes", Text: "Bring sunscreen",
		})

		require.NoError(t, err)
		assert.Equal(t, IngestOutput{DocumentID: "doc-1", Title: "Notes", Status: "ready"}, output)
		assert.Equal(t, "alice", ing.ingested.CallerID)
		assert.Equal(t, domain.SourceTypeManual, ing.ingested.SourceType)
		assert.Empty(t, ing.linked)
	})

	t.Run("url takes precedence", func(t *testing.T) {
		ing := &mockIngestionService{document: doc}
		_, _, err := newServer(t, ing).handleIngest(ctx, nil, IngestInput{
			TripID: "trip-1", Text: "ignored", URL: "https://example.com/guide",
		})

		require.NoError(t, err)
		assert.Equal(t, "https://example.com/guide", ing.linked)
		assert.Empty(t, ing.ingested.RawText)
	})

	t.Run("requires text or url", func(t *testing.T) {
		_, _, err := newServer(t, &mockIngestionService{}).handleIngest(ctx, nil, IngestInput{TripID: "trip-1"})

		var qe *domain.QueryError
		require.ErrorAs(t, err, &qe)
		assert.Equal(t, domain.ErrorKindInvalidInput, qe.Kind)
	})
}
