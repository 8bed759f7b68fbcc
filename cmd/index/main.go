// Package main provides the indexing CLI: load extracted rulebook text into
// the document store and build or rebuild the vector index for it.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/rulewise/rulewise/internal/cache"
	"github.com/rulewise/rulewise/internal/chunker"
	"github.com/rulewise/rulewise/internal/config"
	"github.com/rulewise/rulewise/internal/docstore"
	"github.com/rulewise/rulewise/internal/embedding"
	"github.com/rulewise/rulewise/internal/indexer"
	"github.com/rulewise/rulewise/internal/statestore"
	"github.com/rulewise/rulewise/internal/vectorindex"
)

var rootCmd = &cobra.Command{
	Use:   "rulewise-index",
	Short: "Rulebook indexing tool",
	Long:  "CLI tool for loading extracted rulebook text and managing the vector index",
}

var addTitle string

var addCmd = &cobra.Command{
	Use:   "add <game-id> <document-id> <text-file>",
	Short: "Store extracted rulebook text for a document",
	Long: `Stores a document's extracted text so it can be indexed.

The text file is the extraction output: plain text with form-feed
characters separating pages. Re-running add replaces the stored text.`,
	Args: cobra.ExactArgs(3),
	RunE: runAdd,
}

var documentCmd = &cobra.Command{
	Use:   "document <document-id>",
	Short: "Index one stored document",
	Long: `Chunks, embeds, and indexes one document's stored text.

Existing vectors for the document are replaced, so re-running after a
rules update is safe. Cached answers for the game are invalidated.

Environment variables:
  QDRANT_HOST    Qdrant hostname (default: localhost)
  QDRANT_PORT    Qdrant gRPC port (default: 6334)
  OPENAI_API_KEY OpenAI API key for embeddings (required)
  DATA_DIR       State database directory (default: ~/.rulewise/data)`,
	Args: cobra.ExactArgs(1),
	RunE: runIndexDocument,
}

var gameCmd = &cobra.Command{
	Use:   "game <game-id>",
	Short: "Re-index every stored document for a game",
	Args:  cobra.ExactArgs(1),
	RunE:  runIndexGame,
}

func init() {
	addCmd.Flags().StringVar(&addTitle, "title", "", "Human-readable document title")
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(documentCmd)
	rootCmd.AddCommand(gameCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runAdd(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	gameID, documentID, path := args[0], args[1], args[2]

	text, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	state, err := statestore.New(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer state.Close()

	doc := &docstore.Document{
		ID:            documentID,
		GameID:        gameID,
		Title:         addTitle,
		ExtractedText: string(text),
		PageCount:     strings.Count(string(text), "\f") + 1,
	}
	if err := state.DocumentStore().Put(ctx, doc); err != nil {
		return fmt.Errorf("failed to store document: %w", err)
	}

	fmt.Printf("Stored document %s for game %s (%d pages, %d bytes)\n",
		documentID, gameID, doc.PageCount, len(text))
	fmt.Printf("Run 'rulewise-index document %s' to make it searchable.\n", documentID)
	return nil
}

func runIndexDocument(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	start := time.Now()

	pipeline, cleanup, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := pipeline.IndexDocument(ctx, args[0])
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	fmt.Println("Indexing complete!")
	fmt.Printf("  Document: %s\n", result.DocumentID)
	fmt.Printf("  Game: %s\n", result.GameID)
	fmt.Printf("  Chunks: %d\n", result.ChunkCount)
	fmt.Printf("  Duration: %s\n", time.Since(start).Round(time.Millisecond))
	return nil
}

func runIndexGame(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	start := time.Now()

	pipeline, cleanup, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	results, err := pipeline.IndexGame(ctx, args[0])
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	total := 0
	for _, r := range results {
		fmt.Printf("  %s: %d chunks\n", r.DocumentID, r.ChunkCount)
		total += r.ChunkCount
	}
	fmt.Println("Indexing complete!")
	fmt.Printf("  Documents: %d\n", len(results))
	fmt.Printf("  Chunks: %d\n", total)
	fmt.Printf("  Duration: %s\n", time.Since(start).Round(time.Millisecond))
	return nil
}

// buildPipeline wires the full indexing flow, including the response cache
// so stale cached answers are dropped when rules change.
func buildPipeline(ctx context.Context) (*indexer.Pipeline, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	state, err := statestore.New(cfg.DataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open state store: %w", err)
	}

	fmt.Printf("Connecting to Qdrant at %s:%d...\n", cfg.QdrantHost, cfg.QdrantPort)
	index, err := vectorindex.New(cfg.QdrantHost, cfg.QdrantPort, config.EmbeddingDimension)
	if err != nil {
		state.Close()
		return nil, nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
	}

	cleanup := func() {
		index.Close()
		state.Close()
	}

	if err := index.EnsureCollection(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to ensure collection: %w", err)
	}

	embeddingClient, err := embedding.NewClient()
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to create embedding client: %w", err)
	}
	embedder := embedding.NewEmbedder(embeddingClient, 0) // Use default batch size

	responseCache := cache.New(state.CacheStore(), nil)
	pipeline := indexer.New(state.DocumentStore(), chunker.New(), embedder, index, responseCache, slog.Default())
	return pipeline, cleanup, nil
}
