package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tripsync/tripctx/internal/core/domain"
)

const (
	// URIScheme is the custom URI scheme for tripctx resources.
	uriScheme = "tripctx://"
)

// registerResources registers all resource handlers with the MCP server.
// Resources are read as the server's caller.
func (s *Server) registerResources() {
	if s.ports.Ingestion != nil {
		s.server.AddResourceTemplate(&mcp.ResourceTemplate{
			URITemplate: uriScheme + "trips/{tripId}/documents",
			Name:        "trip-documents",
			Description: "Documents in a trip's knowledge base",
			MIMEType:    "application/json",
		}, s.handleDocumentsResource)

		s.server.AddResourceTemplate(&mcp.ResourceTemplate{
			URITemplate: uriScheme + "trips/{tripId}/documents/{documentId}",
			Name:        "document-content",
			Description: "Normalised text of a trip document",
			MIMEType:    "text/plain",
		}, s.handleDocumentContentResource)
	}

	if s.ports.Members != nil {
		s.server.AddResourceTemplate(&mcp.ResourceTemplate{
			URITemplate: uriScheme + "trips/{tripId}/members",
			Name:        "trip-members",
			Description: "Membership rows of a trip",
			MIMEType:    "application/json",
		}, s.handleMembersResource)
	}
}

// handleDocumentsResource returns the documents of a trip.
func (s *Server) handleDocumentsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	tripID, rest := parseTripURI(req.Params.URI)
	if tripID == "" || rest != "documents" || s.opts.Caller == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	docs, err := s.ports.Ingestion.List(ctx, tripID, s.opts.Caller, domain.DocumentFilter{})
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}

	// Build simplified document list.
	type docInfo struct {
		ID     string `json:"id"`
		Title  string `json:"title"`
		Source string `json:"source"`
		Status string `json:"status"`
		URI    string `json:"uri,omitempty"`
	}

	infos := make([]docInfo, len(docs))
	for i := range docs {
		infos[i] = docInfo{
			ID:     docs[i].ID,
			Title:  docs[i].Title,
			Source: string(docs[i].SourceType),
			Status: string(docs[i].Status),
			URI:    docs[i].URI,
		}
	}
	return jsonResource(req.Params.URI, infos)
}

// handleDocumentContentResource returns the text of one document.
func (s *Server) handleDocumentContentResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	tripID, rest := parseTripURI(req.Params.URI)
	docID, ok := strings.CutPrefix(rest, "documents/")
	if tripID == "" || !ok || docID == "" || strings.Contains(docID, "/") || s.opts.Caller == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	doc, err := s.ports.Ingestion.Get(ctx, tripID, s.opts.Caller, docID)
	if err != nil {
		return nil, fmt.Errorf("getting document: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "text/plain",
			Text:     doc.RawText,
		}},
	}, nil
}

// handleMembersResource returns a trip's membership rows. Only active
// members of the trip may read it.
func (s *Server) handleMembersResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	tripID, rest := parseTripURI(req.Params.URI)
	if tripID == "" || rest != "members" || s.opts.Caller == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	members, err := s.ports.Members.List(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	if !hasActiveMember(members, s.opts.Caller) {
		return nil, fmt.Errorf("listing members: %w", domain.ErrAccessDenied)
	}

	type memberInfo struct {
		UserID string `json:"user_id"`
		Status string `json:"status"`
		Role   string `json:"role,omitempty"`
	}

	infos := make([]memberInfo, len(members))
	for i, m := range members {
		infos[i] = memberInfo{UserID: m.UserID, Status: string(m.Status), Role: m.Role}
	}
	return jsonResource(req.Params.URI, infos)
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling resource: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

func hasActiveMember(members []domain.Membership, userID string) bool {
	for _, m := range members {
		if m.UserID == userID {
			return m.IsActive()
		}
	}
	return false
}

// parseTripURI splits tripctx://trips/{tripId}/{rest} into its trip ID and rest.
func parseTripURI(uri string) (tripID, rest string) {
	const prefix = uriScheme + "trips/"

	path, ok := strings.CutPrefix(uri, prefix)
	if !ok {
		return "", ""
	}

	tripID, rest, ok = strings.Cut(path, "/")
	if !ok {
		return "", ""
	}
	return tripID, rest
}
