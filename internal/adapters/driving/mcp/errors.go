// Package mcp provides an MCP (Model Context Protocol) server adapter for tripctx.
// It lets AI assistants build trip prompts, retrieve passages and add documents.
package mcp

import "errors"

// ErrMissingContextService is returned when the context service is not provided.
var ErrMissingContextService = errors.New("mcp: context service is required")
