// Package indexer orchestrates chunking, embedding, and vector storage for
// one document. Re-indexing is idempotent: existing records for the document
// are deleted before the new set is upserted.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rulewise/rulewise/internal/chunker"
	"github.com/rulewise/rulewise/internal/docstore"
	"github.com/rulewise/rulewise/internal/errs"
	"github.com/rulewise/rulewise/internal/vectorindex"
)

// Embedder generates vectors for a batch of chunk texts. Partial batch
// failure surfaces as an error; chunks are never silently dropped.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Index receives the document's replacement chunk set.
type Index interface {
	Upsert(ctx context.Context, records []vectorindex.Record) error
	DeleteByDocument(ctx context.Context, documentID string) error
}

// Invalidator drops cached answers for a game after its rules change.
type Invalidator interface {
	Invalidate(ctx context.Context, gameID string) (int64, error)
}

// Result contains statistics about one indexing operation.
type Result struct {
	DocumentID string    `json:"vectorDocumentId"`
	GameID     string    `json:"gameId"`
	ChunkCount int       `json:"chunkCount"`
	IndexedAt  time.Time `json:"indexedAt"`
}

// Pipeline runs the full indexing flow for stored documents.
type Pipeline struct {
	docs        docstore.Store
	chunker     *chunker.Chunker
	embedder    Embedder
	index       Index
	invalidator Invalidator
	logger      *slog.Logger
}

// New creates an indexing pipeline. invalidator may be nil when no response
// cache is wired (e.g. the offline CLI against a fresh index).
func New(docs docstore.Store, ch *chunker.Chunker, embedder Embedder, index Index, invalidator Invalidator, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		docs:        docs,
		chunker:     ch,
		embedder:    embedder,
		index:       index,
		invalidator: invalidator,
		logger:      logger,
	}
}

// IndexDocument chunks, embeds, and stores one document's extracted text.
// Calling it twice with unchanged source text yields the same retrievable
// chunk set.
func (p *Pipeline) IndexDocument(ctx context.Context, documentID string) (*Result, error) {
	doc, err := p.docs.Get(ctx, documentID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, errs.NotFound(fmt.Sprintf("document %s not found", documentID))
		}
		return nil, fmt.Errorf("load document: %w", err)
	}

	if doc.ExtractedText == "" {
		return nil, errs.Validation(fmt.Sprintf("document %s has no extracted text yet", documentID))
	}

	chunks := p.chunker.Split(doc.ExtractedText)
	p.logger.Debug("Chunked document", "document", documentID, "chunks", len(chunks))

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errs.Upstream("embedding provider unavailable", err)
	}

	records := make([]vectorindex.Record, len(chunks))
	for i, c := range chunks {
		records[i] = vectorindex.Record{
			ChunkID:    uuid.New().String(),
			GameID:     doc.GameID,
			DocumentID: doc.ID,
			ChunkIndex: c.Index,
			Page:       c.Page,
			Section:    c.Section,
			CharStart:  c.CharStart,
			CharEnd:    c.CharEnd,
			Text:       c.Text,
			Vector:     vectors[i],
		}
	}

	// Delete-then-upsert keeps re-indexing idempotent: the retrievable set
	// for a document always reflects exactly one ingestion.
	if err := p.index.DeleteByDocument(ctx, doc.ID); err != nil {
		return nil, errs.Upstream("vector index delete failed", err)
	}
	if err := p.index.Upsert(ctx, records); err != nil {
		return nil, errs.Upstream("vector index write failed", err)
	}

	// New rules are now retrievable; cached answers for the game are stale.
	if p.invalidator != nil {
		if dropped, err := p.invalidator.Invalidate(ctx, doc.GameID); err != nil {
			p.logger.Warn("Cache invalidation failed after reindex", "game", doc.GameID, "error", err)
		} else if dropped > 0 {
			p.logger.Info("Invalidated cached answers", "game", doc.GameID, "entries", dropped)
		}
	}

	result := &Result{
		DocumentID: doc.ID,
		GameID:     doc.GameID,
		ChunkCount: len(records),
		IndexedAt:  time.Now().UTC(),
	}
	p.logger.Info("Indexed document", "document", doc.ID, "game", doc.GameID, "chunks", len(records))
	return result, nil
}

// IndexGame re-indexes every stored document for a game.
func (p *Pipeline) IndexGame(ctx context.Context, gameID string) ([]*Result, error) {
	docs, err := p.docs.ListByGame(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	if len(docs) == 0 {
		return nil, errs.NotFound(fmt.Sprintf("no documents for game %s", gameID))
	}

	results := make([]*Result, 0, len(docs))
	for _, doc := range docs {
		result, err := p.IndexDocument(ctx, doc.ID)
		if err != nil {
			return results, fmt.Errorf("index document %s: %w", doc.ID, err)
		}
		results = append(results, result)
	}
	return results, nil
}
