package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tripsync/tripctx/internal/core/domain"
	"github.com/tripsync/tripctx/internal/core/ports/driving"
)

// TripContextInput is the input schema for the trip_context tool.
type TripContextInput struct {
	TripID   string `json:"trip_id" jsonschema:"the trip the question is about"`
	CallerID string `json:"caller_id,omitempty" jsonschema:"the asking user; defaults to the server's caller"`
	Query    string `json:"query" jsonschema:"the user's question"`
	K        int    `json:"k,omitempty" jsonschema:"number of document passages to include (default from config)"`
}

// TripContextOutput is the output schema for the trip_context tool.
// Exactly one of Prompt and Error is set.
type TripContextOutput struct {
	Prompt    string             `json:"prompt,omitempty"`
	Degraded  bool               `json:"degraded,omitempty"`
	Remaining int                `json:"remaining"`
	Error     *domain.QueryError `json:"error,omitempty"`
}

// RetrieveInput is the input schema for the retrieve_chunks tool.
type RetrieveInput struct {
	TripID   string `json:"trip_id" jsonschema:"the trip whose documents are searched"`
	CallerID string `json:"caller_id,omitempty" jsonschema:"the searching user; defaults to the server's caller"`
	Query    string `json:"query" jsonschema:"the search query"`
	K        int    `json:"k,omitempty" jsonschema:"maximum number of passages to return"`
}

// RetrieveOutput is the output schema for the retrieve_chunks tool.
type RetrieveOutput struct {
	Chunks []ChunkOutput `json:"chunks"`
	Count  int           `json:"count"`
}

// ChunkOutput represents a single retrieved passage.
type ChunkOutput struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title"`
	URI        string  `json:"uri,omitempty"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

// IngestInput is the input schema for the ingest_document tool.
type IngestInput struct {
	TripID   string `json:"trip_id" jsonschema:"the trip that owns the document"`
	CallerID string `json:"caller_id,omitempty" jsonschema:"the uploading user; defaults to the server's caller"`
	Title    string `json:"title,omitempty" jsonschema:"document title"`
	Text     string `json:"text,omitempty" jsonschema:"document text; required unless url is set"`
	URL      string `json:"url,omitempty" jsonschema:"a web page to fetch and ingest instead of text"`
}

// IngestOutput is the output schema for the ingest_document tool.
type IngestOutput struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
	Status     string `json:"status"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name: "trip_context",
		Description: "Build the grounded prompt for a question about a trip: relevant document passages " +
			"plus live trip data (calendar, expenses, polls, places, chat, roster, announcements, preferences). " +
			"Counts against the caller's daily quota.",
	}, s.handleTripContext)

	if s.ports.Retriever != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "retrieve_chunks",
			Description: "Search a trip's documents and return the best matching passages",
		}, s.handleRetrieve)
	}

	if s.ports.Ingestion != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "ingest_document",
			Description: "Add text or a web page to a trip's knowledge base",
		}, s.handleIngest)
	}
}

// handleTripContext handles the trip_context tool invocation. Failures are
// reported as a structured {kind, message} error result.
func (s *Server) handleTripContext(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input TripContextInput,
) (*mcp.CallToolResult, TripContextOutput, error) {
	res, err := s.ports.Context.BuildPrompt(ctx, domain.QueryRequest{
		TripID:   input.TripID,
		CallerID: s.caller(input.CallerID),
		Query:    input.Query,
		K:        input.K,
	})
	if err != nil {
		qe := domain.ToQueryError(err)
		return errorResult(qe), TripContextOutput{Error: qe}, nil
	}

	return nil, TripContextOutput{
		Prompt:    res.Prompt,
		Degraded:  res.Degraded,
		Remaining: res.Usage.Remaining,
	}, nil
}

// handleRetrieve handles the retrieve_chunks tool invocation.
func (s *Server) handleRetrieve(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RetrieveInput,
) (*mcp.CallToolResult, RetrieveOutput, error) {
	chunks, err := s.ports.Retriever.Retrieve(ctx, input.TripID, s.caller(input.CallerID), input.Query, input.K)
	if err != nil {
		return nil, RetrieveOutput{}, domain.ToQueryError(err)
	}

	output := RetrieveOutput{
		Chunks: make([]ChunkOutput, len(chunks)),
		Count:  len(chunks),
	}
	for i := range chunks {
		output.Chunks[i] = ChunkOutput{
			ChunkID:    chunks[i].Chunk.ID,
			DocumentID: chunks[i].Document.ID,
			Title:      chunks[i].Document.Title,
			URI:        chunks[i].Document.URI,
			Text:       chunks[i].Chunk.Text,
			Score:      chunks[i].Score,
		}
	}
	return nil, output, nil
}

// handleIngest handles the ingest_document tool invocation.
func (s *Server) handleIngest(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input IngestInput,
) (*mcp.CallToolResult, IngestOutput, error) {
	caller := s.caller(input.CallerID)

	var (
		doc *domain.Document
		err error
	)
	switch {
	case strings.TrimSpace(input.URL) != "":
		doc, err = s.ports.Ingestion.IngestLink(ctx, input.TripID, caller, input.URL)
	case strings.TrimSpace(input.Text) != "":
		doc, err = s.ports.Ingestion.Ingest(ctx, driving.IngestRequest{
			TripID:     input.TripID,
			CallerID:   caller,
			Title:      input.Title,
			SourceType: domain.SourceTypeManual,
			RawText:    input.Text,
		})
	default:
		err = errors.Join(domain.ErrInvalidInput, errors.New("text or url is required"))
	}
	if err != nil {
		return nil, IngestOutput{}, domain.ToQueryError(err)
	}

	return nil, IngestOutput{
		DocumentID: doc.ID,
		Title:      doc.Title,
		Status:     string(doc.Status),
	}, nil
}

func errorResult(qe *domain.QueryError) *mcp.CallToolResult {
	data, err := json.Marshal(qe)
	if err != nil {
		data = []byte(qe.Error())
	}
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}
