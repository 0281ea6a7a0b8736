package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tripsync/tripctx/internal/adapters/driving/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  `Commands for the Model Context Protocol (MCP) server integration.`,
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the Model Context Protocol server for AI assistant integration.

The server exposes the tools trip_context, retrieve_chunks and
ingest_document. Tool calls may name their caller_id; calls that omit it,
and all resource reads, run as --caller.

By default, the server communicates over stdio using JSON-RPC.
Use --port to start an HTTP server instead, which enables:
  - Testing with MCP Inspector web UI
  - Remote access via HTTP

Examples:
  # Stdio mode (default)
  tripctx mcp serve --caller alice

  # HTTP mode (for MCP Inspector, remote access)
  tripctx mcp serve --port 8080

Client configuration:
  {
    "mcpServers": {
      "tripctx": {
        "command": "/path/to/tripctx",
        "args": ["mcp", "serve", "--caller", "alice"]
      }
    }
  }`,
	RunE: runMCPServe,
}

func init() {
	mcpServeCmd.Flags().IntP("port", "p", 0, "HTTP port (0 = use stdio)")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	port, err := cmd.Flags().GetInt("port")
	if err != nil {
		return fmt.Errorf("getting port flag: %w", err)
	}
	if engine == nil {
		return errors.New("services not configured")
	}

	ports := &mcp.Ports{
		Context:   engine.Context,
		Retriever: engine.Retriever,
		Ingestion: engine.Ingestion,
		Members:   engine.Members,
	}

	server, err := mcp.NewServer(ports, mcp.Options{Caller: callerID})
	if err != nil {
		return err
	}

	if port > 0 {
		addr := fmt.Sprintf(":%d", port)
		fmt.Fprintf(cmd.OutOrStdout(), "MCP server listening on http://localhost%s\n", addr)
		return server.RunHTTP(cmd.Context(), addr)
	}

	return server.Run(cmd.Context())
}
