package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rulewise/rulewise/internal/engine"
	"github.com/rulewise/rulewise/internal/vectorindex"
)

// Retriever fetches scored rulebook chunks for a game-scoped query.
type Retriever interface {
	Retrieve(ctx context.Context, gameID, question string) ([]vectorindex.ScoredRecord, error)
}

// Server wraps the MCP server with dependencies.
type Server struct {
	server *mcp.Server
}

// Config holds server dependencies.
type Config struct {
	Engine    *engine.Engine
	Retriever Retriever
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	impl := &mcp.Implementation{
		Name:    "rulewise-server",
		Version: "v0.1.0",
	}

	server := mcp.NewServer(impl, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask_rules",
		Description: "Ask a natural-language question about a board game's rules. Returns a grounded answer with citations into the indexed rulebook.",
	}, makeAskHandler(cfg.Engine))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_rules",
		Description: "Semantically search a game's indexed rulebook text. Returns matching chunks with pages and sections; no answer synthesis.",
	}, makeSearchHandler(cfg.Retriever))

	return &Server{server: server}
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
// Used by transport handlers that need to wrap the server.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
