// Package retriever embeds a player's question and fetches the most relevant
// rulebook chunks for one game.
package retriever

import (
	"context"
	"sort"

	"github.com/rulewise/rulewise/internal/errs"
	"github.com/rulewise/rulewise/internal/vectorindex"
)

// Embedder maps a query to a vector with the same model used at indexing.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Index performs game-scoped similarity search.
type Index interface {
	Search(ctx context.Context, gameID string, vector []float32, limit int, minScore float64) ([]vectorindex.ScoredRecord, error)
}

// Retriever fetches top-K chunks above a minimum score. Empty results are a
// valid, non-error outcome.
type Retriever struct {
	embedder Embedder
	index    Index
	topK     int
	minScore float64
}

// New creates a Retriever with the given fetch bounds.
func New(embedder Embedder, index Index, topK int, minScore float64) *Retriever {
	return &Retriever{
		embedder: embedder,
		index:    index,
		topK:     topK,
		minScore: minScore,
	}
}

// Retrieve returns chunks ordered by descending score, ties broken by
// ascending chunk index.
func (r *Retriever) Retrieve(ctx context.Context, gameID, question string) ([]vectorindex.ScoredRecord, error) {
	vector, err := r.embedder.EmbedQuery(ctx, question)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errs.Upstream("embedding provider unavailable", err)
	}

	records, err := r.index.Search(ctx, gameID, vector, r.topK, r.minScore)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errs.Upstream("vector index unavailable", err)
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Score != records[j].Score {
			return records[i].Score > records[j].Score
		}
		return records[i].ChunkIndex < records[j].ChunkIndex
	})

	if len(records) > r.topK {
		records = records[:r.topK]
	}
	return records, nil
}
