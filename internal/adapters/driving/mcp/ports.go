package mcp

import (
	"github.com/tripsync/tripctx/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Context builds prompts for the trip_context tool.
	Context driving.ContextService

	// Retriever serves retrieve_chunks.
	Retriever driving.RetrieverService

	// Ingestion serves ingest_document and the document resources.
	Ingestion driving.IngestionService

	// Members serves the members resource.
	Members driving.MembershipService
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Context == nil {
		return ErrMissingContextService
	}
	// The remaining ports only disable their tools when nil.
	return nil
}
