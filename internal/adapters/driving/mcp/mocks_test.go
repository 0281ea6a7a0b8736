package mcp

import (
	"context"
	"time"

	"github.com/tripsync/tripctx/internal/core/domain"
	"github.com/tripsync/tripctx/internal/core/ports/driving"
)

// mockContextService is a mock implementation of driving.ContextService.
type mockContextService struct {
	result *domain.QueryResult
	err    error
	got    domain.QueryRequest
}

func (m *mockContextService) BuildPrompt(_ context.Context, req domain.QueryRequest) (*domain.QueryResult, error) {
	m.got = req
	return m.result, m.err
}

// mockRetrieverService is a mock implementation of driving.RetrieverService.
type mockRetrieverService struct {
	chunks []domain.RetrievedChunk
	err    error
	caller string
}

func (m *mockRetrieverService) Retrieve(_ context.Context, _, callerID, _ string, _ int) ([]domain.RetrievedChunk, error) {
	m.caller = callerID
	return m.chunks, m.err
}

// mockIngestionService is a mock implementation of driving.IngestionService.
type mockIngestionService struct {
	documents []domain.Document
	document  *domain.Document
	err       error

	ingested driving.IngestRequest
	linked   string
}

func (m *mockIngestionService) Ingest(_ context.Context, req driving.IngestRequest) (*domain.Document, error) {
	m.ingested = req
	return m.document, m.err
}

func (m *mockIngestionService) IngestFile(_ context.Context, _, _, _ string) (*domain.Document, error) {
	return m.document, m.err
}

func (m *mockIngestionService) IngestLink(_ context.Context, _, _, rawURL string) (*domain.Document, error) {
	m.linked = rawURL
	return m.document, m.err
}

func (m *mockIngestionService) List(
	_ context.Context, _, _ string, _ domain.DocumentFilter,
) ([]domain.Document, error) {
	return m.documents, m.err
}

func (m *mockIngestionService) Get(_ context.Context, _, _, _ string) (*domain.Document, error) {
	return m.document, m.err
}

func (m *mockIngestionService) Delete(_ context.Context, _, _, _ string) error {
	return m.err
}

func (m *mockIngestionService) PurgeFailed(_ context.Context, _ time.Duration) (int, error) {
	return 0, m.err
}

// mockMembershipService is a mock implementation of driving.MembershipService.
type mockMembershipService struct {
	members []domain.Membership
	err     error
}

func (m *mockMembershipService) Set(_ context.Context, _ domain.Membership) error {
	return m.err
}

func (m *mockMembershipService) List(_ context.Context, _ string) ([]domain.Membership, error) {
	return m.members, m.err
}
