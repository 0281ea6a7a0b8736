package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/tripsync/tripctx/internal/logger"
)

// Version is the MCP server version.
const Version = "0.1.0"

const instructions = `tripctx answers questions about group trips.
Call trip_context with a trip_id and question to get an assembled prompt
grounded in the trip's itinerary, expenses, polls, chat and documents.
Use retrieve_chunks for raw document passages and ingest_document to add
notes. Every call is checked against trip membership and may be refused
with access_denied or quota_exceeded.`

const shutdownTimeout = 5 * time.Second

// Options configures the server.
type Options struct {
	// Caller is used when a tool call omits caller_id, and for all resource reads.
	Caller string
}

// Server exposes trip context over MCP.
type Server struct {
	ports  *Ports
	opts   Options
	server *mcp.Server
}

// NewServer registers the tools and resources the ports support.
func NewServer(ports *Ports, opts Options) (*Server, error) {
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("validating ports: %w", err)
	}
	opts.Caller = strings.TrimSpace(opts.Caller)

	s := &Server{
		ports: ports,
		opts:  opts,
		server: mcp.NewServer(
			&mcp.Implementation{Name: "tripctx", Version: Version},
			&mcp.ServerOptions{Instructions: instructions},
		),
	}
	s.registerTools()
	s.registerResources()

	if s.opts.Caller == "" {
		logger.Warn("MCP server has no default caller; resources are disabled and tools need caller_id")
	}
	return s, nil
}

// Run serves over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves the streamable HTTP transport on addr until ctx is
// cancelled, then drains open requests.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("MCP HTTP server listening on %s", addr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) caller(explicit string) string {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return explicit
	}
	return s.opts.Caller
}
