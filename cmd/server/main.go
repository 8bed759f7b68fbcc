// Package main provides the rulewise serving entry point: the REST QA API,
// the SSE streaming endpoint, and the MCP tool surface on one listener.
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

	"github.com/joho/godotenv"

	"github.com/rulewise/rulewise/internal/cache"
	"github.com/rulewise/rulewise/internal/chunker"
	"github.com/rulewise/rulewise/internal/config"
	"github.com/rulewise/rulewise/internal/embedding"
	"github.com/rulewise/rulewise/internal/engine"
	"github.com/rulewise/rulewise/internal/httpapi"
	"github.com/rulewise/rulewise/internal/indexer"
	"github.com/rulewise/rulewise/internal/mcpserver"
	"github.com/rulewise/rulewise/internal/ratelimit"
	"github.com/rulewise/rulewise/internal/retriever"
	"github.com/rulewise/rulewise/internal/statestore"
	"github.com/rulewise/rulewise/internal/synthesizer"
	"github.com/rulewise/rulewise/internal/vectorindex"
)

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	state, err := statestore.New(cfg.DataDir)
	if err != nil {
		log.Fatalf("failed to open state store: %v", err)
	}
	defer state.Close()

	index, err := vectorindex.New(cfg.QdrantHost, cfg.QdrantPort, config.EmbeddingDimension)
	if err != nil {
		log.Fatalf("failed to connect to Qdrant: %v", err)
	}
	defer index.Close()

	// Creates the collection on first run; on later runs validates that its
	// dimension still matches the configured embedding model.
	if err := index.EnsureCollection(ctx); err != nil {
		log.Fatalf("failed to ensure collection: %v", err)
	}

	embeddingClient, err := embedding.NewClient()
	if err != nil {
		log.Fatalf("failed to create embedding client: %v", err)
	}
	embedder := embedding.NewEmbedder(embeddingClient, 0) // Use default batch size

	responseCache := cache.New(state.CacheStore(), nil)
	limiter := ratelimit.New(state.RateLimitStore(), nil)
	ret := retriever.New(embedder, index, cfg.TopK, cfg.MinScore)
	chat := synthesizer.NewOpenAIChat(embeddingClient.Client(), cfg.ChatModel)
	synth := synthesizer.New(chat, cfg.ChatModel)
	eng := engine.New(ret, synth, responseCache, limiter, engine.Options{Logger: logger})
	pipeline := indexer.New(state.DocumentStore(), chunker.New(), embedder, index, responseCache, logger)

	api := httpapi.NewServer(eng, pipeline, responseCache, state, cfg.APIKeys, logger)
	mcpSrv := mcpserver.NewServer(&mcpserver.Config{Engine: eng, Retriever: ret})

	mux := http.NewServeMux()
	mux.Handle("/", api.Handler())
	mux.Handle("/mcp", mcpserver.NewHTTPHandler(mcpSrv, nil))

	// Stdio mode serves MCP over stdin/stdout for local agent clients; the
	// HTTP surface still runs in the background for health checks.
	if os.Getenv("MCP_STDIO") == "true" {
		go serveHTTP(ctx, mux, cfg.HTTPPort, logger)
		log.Println("Starting rulewise MCP server (stdio mode)...")
		if err := mcpSrv.Run(ctx); err != nil {
			log.Printf("server error: %v", err)
			os.Exit(1)
		}
		return
	}

	serveHTTP(ctx, mux, cfg.HTTPPort, logger)
}

func serveHTTP(ctx context.Context, handler http.Handler, port string, logger *slog.Logger) {
	srv := &http.Server{
		Addr:    "0.0.0.0:" + port,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Shutdown did not complete cleanly", "error", err)
		}
	}()

	logger.Info("Starting HTTP server", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("HTTP server error: %v", err)
	}
}
