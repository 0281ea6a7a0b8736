package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripsync/tripctx/internal/core/domain"
)

func TestParseTripURI(t *testing.T) {
	tests := []struct {
		name     string
		uri      string
		wantTrip string
		wantRest string
	}{
		{"documents", "tripctx://trips/trip-1/documents", "trip-1", "documents"},
		{"document", "tripctx://trips/trip-1/documents/doc-9", "trip-1", "documents/doc-9"},
		{"members", "tripctx://trips/trip-1/members", "trip-1", "members"},
		{"invalid prefix", "file://trips/trip-1/documents", "", ""},
		{"trip only", "tripctx://trips/trip-1", "", ""},
		{"empty URI", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trip, rest := parseTripURI(tt.uri)
			assert.Equal(t, tt.wantTrip, trip)
			assert.Equal(t, tt.wantRest, rest)
		})
	}
}

func makeReadResourceRequest(uri string) *mcp.ReadResourceRequest {
	return &mcp.ReadResourceRequest{
		Params: &mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func newResourceServer(t *testing.T, ports *Ports, caller string) *Server {
	t.Helper()
	ports.Context = &mockContextService{}
	server, err := NewServer(ports, Options{Caller: caller})
	require.NoError(t, err)
	return server
}

func TestServer_handleDocumentsResource(t *testing.T) {
	ctx := context.Background()

	t.Run("returns documents", func(t *testing.T) {
		ing := &mockIngestionService{documents: []domain.Document{
			{ID: "doc-1", Title: "Flights", SourceType: domain.SourceTypeUpload, Status: domain.DocumentReady, URI: "flights.pdf"},
		}}
		server := newResourceServer(t, &Ports{Ingestion: ing}, "alice")

		result, err := server.handleDocumentsResource(ctx, makeReadResourceRequest("tripctx://trips/trip-1/documents"))

		require.NoError(t, err)
		require.Len(t, result.Contents, 1)
		assert.Equal(t, "application/json", result.Contents[0].MIMEType)
		assert.Contains(t, result.Contents[0].Text, `"id": "doc-1"`)
		assert.Contains(t, result.Contents[0].Text, `"status": "ready"`)
		assert.Contains(t, result.Contents[0].Text, "flights.pdf")
	})

	t.Run("not found without a caller", func(t *testing.T) {
		server := newResourceServer(t, &Ports{Ingestion: &mockIngestionService{}}, "")

		_, err := server.handleDocumentsResource(ctx, makeReadResourceRequest("tripctx://trips/trip-1/documents"))

		require.Error(t, err)
	})

	t.Run("returns error on list failure", func(t *testing.T) {
		server := newResourceServer(t, &Ports{Ingestion: &mockIngestionService{err: domain.ErrAccessDenied}}, "eve")

		_, err := server.handleDocumentsResource(ctx, makeReadResourceRequest("tripctx://trips/trip-1/documents"))

		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrAccessDenied)
		assert.Contains(t, err.Error(), "listing documents")
	})
}

func TestServer_handleDocumentContentResource(t *testing.T) {
	ctx := context.Background()

	t.Run("returns document text", func(t *testing.T) {
		ing := &mockIngestionService{document: &domain.Document{ID: "doc-1", RawText: "Gate B7"}}
		server := newResourceServer(t, &Ports{Ingestion: ing}, "alice")

		result, err := server.handleDocumentContentResource(ctx,
			makeReadResourceRequest("tripctx://trips/trip-1/documents/doc-1"))

		require.NoError(t, err)
		require.Len(t, result.Contents, 1)
		assert.Equal(t, "text/plain", result.Contents[0].MIMEType)
		assert.Equal(t, "Gate B7", result.Contents[0].Text)
	})

	for _, uri := range []string{
		"tripctx://trips/trip-1/documents/",
		"tripctx://trips/trip-1/documents/a/b",
		"tripctx://trips/trip-1/members",
	} {
		t.Run("rejects "+uri, func(t *testing.T) {
			server := newResourceServer(t, &Ports{Ingestion: &mockIngestionService{}}, "alice")

			_, err := server.handleDocumentContentResource(ctx, makeReadResourceRequest(uri))
			require.Error(t, err)
		})
	}

	t.Run("returns error on get failure", func(t *testing.T) {
		ing := &mockIngestionService{err: errors.New("database error")}
		server := newResourceServer(t, &Ports{Ingestion: ing}, "alice")

		_, err := server.handleDocumentContentResource(ctx,
			makeReadResourceRequest("tripctx://trips/trip-1/documents/doc-1"))

		require.Error(t, err)
		assert.Contains(t, err.Error(), "getting document")
	})
}

func TestServer_handleMembersResource(t *testing.T) {
	ctx := context.Background()
	members := &mockMembershipService{members: []domain.Membership{
		{TripID: "trip-1", UserID: "alice", Status: domain.MembershipActive, Role: "organiser"},
		{TripID: "trip-1", UserID: "pat", Status: domain.MembershipPending},
	}}

	t.Run("active member reads roster", func(t *testing.T) {
		server := newResourceServer(t, &Ports{Members: members}, "alice")

		result, err := server.handleMembersResource(ctx, makeReadResourceRequest("tripctx://trips/trip-1/members"))

		require.NoError(t, err)
		assert.Contains(t, result.Contents[0].Text, "organiser")
		assert.Contains(t, result.Contents[0].Text, `"status": "pending"`)
	})

	for _, caller := range []string{"pat", "eve"} {
		t.Run(caller+" is denied", func(t *testing.T) {
			server := newResourceServer(t, &Ports{Members: members}, caller)

			_, err := server.handleMembersResource(ctx, makeReadResourceRequest("tripctx://trips/trip-1/members"))
			assert.ErrorIs(t, err, domain.ErrAccessDenied)
		})
	}
}
