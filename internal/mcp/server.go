package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/sirasagi62/chopgrep/internal/ingest"
	"github.com/sirasagi62/chopgrep/internal/searcher"
	"github.com/sirasagi62/chopgrep/internal/store"
)

const (
	// ServerName is the MCP server name
	ServerName = "chopgrep"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies. The store
// handle is owned by the caller, which opens it before constructing the
// server and closes it when Serve returns.
type Server struct {
	mcp      *server.MCPServer
	store    store.Store
	ingestor *ingest.Ingestor
	searcher *searcher.Searcher
}

// NewServer creates an MCP server over an already-wired pipeline
func NewServer(st store.Store, ing *ingest.Ingestor, srch *searcher.Searcher) *Server {
	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion),
		store:    st,
		ingestor: ing,
		searcher: srch,
	}
	s.registerTools()
	return s
}

// Serve runs the MCP protocol on stdio and blocks until the client
// disconnects
func (s *Server) Serve(ctx context.Context) error {
	return server.ServeStdio(s.mcp)
}

// HandleTool dispatches one tool call by name, bypassing the stdio
// transport. Lets callers embed the server without speaking the protocol.
func (s *Server) HandleTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	switch req.Params.Name {
	case "index_directory":
		return s.handleIndexDirectory(ctx, req)
	case "search_chunks":
		return s.handleSearchChunks(ctx, req)
	case "get_status":
		return s.handleGetStatus(ctx, req)
	}
	return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("unknown tool %q", req.Params.Name), nil)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(indexDirectoryTool(), s.handleIndexDirectory)
	s.mcp.AddTool(searchChunksTool(), s.handleSearchChunks)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
