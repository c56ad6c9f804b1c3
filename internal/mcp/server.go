package mcp

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	ghclient "github.com/bull/clinical-rag/internal/github"
)

// Server wraps the MCP server with dependencies.
type Server struct {
	server *mcp.Server
	engine Engine
	logger *slog.Logger
}

// Config holds server dependencies.
type Config struct {
	Engine Engine
	// GitHub and Source enable staleness reporting in get_index_status.
	GitHub *ghclient.Client
	Source *ghclient.Source
	Logger *slog.Logger
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	impl := &mcp.Implementation{
		Name:    "clinical-reference-server",
		Version: "v0.1.0",
	}

	server := mcp.NewServer(impl, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask_clinical_question",
		Description: "Answer a clinical question from the indexed medical reference. The answer cites reference pages in brackets and names the model that produced it.",
	}, makeAskHandler(cfg.Engine))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_reference",
		Description: "Semantic search over the indexed medical reference. Returns matching passages with their page numbers, nearest first.",
	}, makeSearchHandler(cfg.Engine))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_index_status",
		Description: "Get the status of the reference index: chunk count, embedding model, build time, source commit, staleness and the completion provider fallback order.",
	}, makeStatusHandler(cfg.Engine, cfg.GitHub, cfg.Source))

	return &Server{
		server: server,
		engine: cfg.Engine,
		logger: logger,
	}
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}

// HTTPHandler serves MCP over the Streamable HTTP transport.
// Stateless disables session management.
func (s *Server) HTTPHandler(stateless bool) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return s.server
	}, &mcp.StreamableHTTPOptions{
		Stateless: stateless,
	})
}

// Mux mounts every endpoint:
//
//	/         landing page
//	/health   backend health
//	/analyze  symptom analysis
//	/mcp      MCP Streamable HTTP
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", NewLandingHandler())
	mux.HandleFunc("/health", NewHealthHandler(s.engine, s.engine.Backend()))
	mux.HandleFunc("/analyze", NewAnalyzeHandler(s.engine, s.logger))
	mux.Handle("/mcp", s.HTTPHandler(false))
	return mux
}
