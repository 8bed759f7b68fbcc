// Package vectorindex stores chunk vectors in Qdrant, one collection for all
// games, filtered by game at query time.
package vectorindex

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"
)

// Index wraps the Qdrant client with connection management and health checks.
type Index struct {
	client    *qdrant.Client
	host      string
	port      int
	dimension int
}

// New creates a new Qdrant-backed index with health validation.
// It performs a health check with retry on startup and fails fast if Qdrant
// is unreachable.
func New(host string, port, dimension int) (*Index, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	x := &Index{
		client:    client,
		host:      host,
		port:      port,
		dimension: dimension,
	}

	ctx := context.Background()
	if err := x.healthCheckWithRetry(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	return x, nil
}

// healthCheckWithRetry performs health check with exponential backoff.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func (x *Index) healthCheckWithRetry(ctx context.Context) error {
	exponentialBackoff := backoff.NewExponentialBackOff()
	exponentialBackoff.InitialInterval = 500 * time.Millisecond
	exponentialBackoff.MaxInterval = 10 * time.Second
	exponentialBackoff.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		return x.Health(ctx)
	}, exponentialBackoff)
}

// Health performs a single health check against Qdrant.
func (x *Index) Health(ctx context.Context) error {
	result, err := x.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}

	return nil
}

// EnsureCollection creates the chunk collection if missing and validates that
// an existing collection matches the configured vector dimension. A dimension
// mismatch is fatal configuration, never recovered per request.
// Idempotent - safe to call multiple times.
func (x *Index) EnsureCollection(ctx context.Context) error {
	collections, err := x.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	for _, name := range collections {
		if name == CollectionName {
			return x.validateDimension(ctx)
		}
	}

	err = x.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: CollectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(x.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	if err := x.createPayloadIndexes(ctx); err != nil {
		return fmt.Errorf("failed to create payload indexes: %w", err)
	}

	return nil
}

// validateDimension compares the live collection's vector size against the
// configured dimension.
func (x *Index) validateDimension(ctx context.Context) error {
	info, err := x.client.GetCollectionInfo(ctx, CollectionName)
	if err != nil {
		return fmt.Errorf("failed to get collection: %w", err)
	}

	params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
	if params == nil {
		return nil
	}
	if int(params.GetSize()) != x.dimension {
		return fmt.Errorf("%w: collection has %d dimensions, configured %d",
			ErrDimensionMismatch, params.GetSize(), x.dimension)
	}
	return nil
}

// createPayloadIndexes creates indexes for all filterable fields.
// Without these indexes, game-scoped filtering degrades badly as the
// collection grows.
func (x *Index) createPayloadIndexes(ctx context.Context) error {
	keyword := []string{"game_id", "document_id"}
	for _, field := range keyword {
		_, err := x.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: CollectionName,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("failed to create index for field %s: %w", field, err)
		}
	}

	_, err := x.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: CollectionName,
		FieldName:      "chunk_index",
		FieldType:      qdrant.FieldType_FieldTypeInteger.Enum(),
	})
	if err != nil {
		return fmt.Errorf("failed to create index for field chunk_index: %w", err)
	}

	return nil
}

// Close closes the Qdrant client connection.
func (x *Index) Close() error {
	if x.client != nil {
		return x.client.Close()
	}
	return nil
}

// upsertWithRetry performs upsert operation with exponential backoff retry.
func (x *Index) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	exponentialBackoff := backoff.NewExponentialBackOff()
	exponentialBackoff.InitialInterval = 500 * time.Millisecond
	exponentialBackoff.MaxInterval = 10 * time.Second
	exponentialBackoff.MaxElapsedTime = 30 * time.Second

	operation := func() error {
		_, err := x.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: CollectionName,
			Points:         points,
		})
		return err
	}

	return backoff.Retry(operation, exponentialBackoff)
}

// Upsert stores chunk records with embeddings, batched in groups of 100.
func (x *Index) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	for i, rec := range records {
		if len(rec.Vector) != x.dimension {
			return fmt.Errorf("%w: record %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(rec.Vector), x.dimension)
		}
	}

	batchSize := 100
	for i := 0; i < len(records); i += batchSize {
		end := min(i+batchSize, len(records))

		batch := records[i:end]
		points := make([]*qdrant.PointStruct, len(batch))

		for j, rec := range batch {
			points[j] = &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(rec.ChunkID),
				Vectors: qdrant.NewVectors(rec.Vector...),
				Payload: qdrant.NewValueMap(map[string]any{
					"game_id":     rec.GameID,
					"document_id": rec.DocumentID,
					"chunk_index": rec.ChunkIndex,
					"page":        rec.Page,
					"section":     rec.Section,
					"char_start":  rec.CharStart,
					"char_end":    rec.CharEnd,
					"text":        rec.Text,
				}),
			}
		}

		if err := x.upsertWithRetry(ctx, points); err != nil {
			return fmt.Errorf("%w: batch %d-%d: %v", ErrWriteFailed, i, end, err)
		}
	}

	return nil
}

// DeleteByDocument removes every record belonging to a document. Re-indexing
// deletes first, then upserts, so a document's retrievable chunk set always
// reflects exactly one ingestion.
func (x *Index) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := x.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: CollectionName,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("document_id", documentID),
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("%w: delete document %s: %v", ErrWriteFailed, documentID, err)
	}
	return nil
}

// Search performs similarity search over one game's chunks. Results are
// ordered by descending score; ties break by ascending chunk index for
// determinism.
func (x *Index) Search(ctx context.Context, gameID string, vector []float32, limit int, minScore float64) ([]ScoredRecord, error) {
	if len(vector) != x.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(vector), x.dimension)
	}

	query := &qdrant.QueryPoints{
		CollectionName: CollectionName,
		Query:          qdrant.NewQuery(vector...),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("game_id", gameID),
			},
		},
		Limit:       qdrant.PtrOf(uint64(limit)),
		WithPayload: qdrant.NewWithPayload(true),
		WithVectors: qdrant.NewWithVectors(false),
	}
	if minScore > 0 {
		query.ScoreThreshold = qdrant.PtrOf(float32(minScore))
	}

	results, err := x.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	records := make([]ScoredRecord, 0, len(results))
	for _, result := range results {
		payload := result.Payload
		records = append(records, ScoredRecord{
			Record: Record{
				ChunkID:    result.Id.GetUuid(),
				GameID:     payload["game_id"].GetStringValue(),
				DocumentID: payload["document_id"].GetStringValue(),
				ChunkIndex: int(payload["chunk_index"].GetIntegerValue()),
				Page:       int(payload["page"].GetIntegerValue()),
				Section:    payload["section"].GetStringValue(),
				CharStart:  int(payload["char_start"].GetIntegerValue()),
				CharEnd:    int(payload["char_end"].GetIntegerValue()),
				Text:       payload["text"].GetStringValue(),
			},
			Score: float64(result.Score),
		})
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Score != records[j].Score {
			return records[i].Score > records[j].Score
		}
		return records[i].ChunkIndex < records[j].ChunkIndex
	})

	return records, nil
}

// CountByDocument returns the number of indexed chunks for a document.
func (x *Index) CountByDocument(ctx context.Context, documentID string) (int, error) {
	count, err := x.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: CollectionName,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("document_id", documentID),
			},
		},
		Exact: qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return int(count), nil
}
