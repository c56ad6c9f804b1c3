// Package main provides the MCP and HTTP server entry point for the clinical reference.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bull/clinical-rag/internal/config"
	"github.com/bull/clinical-rag/internal/engine"
	ghclient "github.com/bull/clinical-rag/internal/github"
	mcpserver "github.com/bull/clinical-rag/internal/mcp"
)

func main() {
	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// Stdout belongs to the MCP stdio transport.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	eng, err := engine.Open(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("failed to open engine: %v", err)
	}
	defer eng.Close()

	serverCfg := &mcpserver.Config{Engine: eng, Logger: logger}

	// Staleness reporting needs the GitHub source the bundle was built from.
	if cfg.GitHubSource != "" && eng.Status(ctx).SourceSHA != "" {
		src, err := ghclient.ParseSource(cfg.GitHubSource)
		if err != nil {
			log.Fatalf("invalid GITHUB_SOURCE: %v", err)
		}
		gh, err := ghclient.NewClient(ctx, cfg.GitHubToken)
		if err != nil {
			log.Fatalf("failed to create GitHub client: %v", err)
		}
		serverCfg.GitHub = gh
		serverCfg.Source = &src
	}

	server := mcpserver.NewServer(serverCfg)
	httpServer := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           server.Mux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	if cfg.ServerMode {
		// HTTP mode: serve MCP, /analyze and /health for remote clients
		logger.Info("Starting HTTP server", "addr", httpServer.Addr, "backend", eng.Backend())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server error: %v", err)
		}
		return
	}

	// Stdio mode: run MCP over stdin/stdout for local clients,
	// with the HTTP endpoints in the background for local testing
	go func() {
		logger.Info("Starting HTTP server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	logger.Info("Starting clinical reference MCP server (stdio mode)")
	if err := server.Run(ctx); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
}
