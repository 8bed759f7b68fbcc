//go:build integration

package vectorindex

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Requires a running Qdrant at localhost:6334.

const testDimension = 4

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	index, err := New("localhost", 6334, testDimension)
	require.NoError(t, err)
	t.Cleanup(func() { index.Close() })

	require.NoError(t, index.EnsureCollection(context.Background()))
	return index
}

func testRecord(gameID, documentID string, chunkIndex int, vector []float32) Record {
	return Record{
		ChunkID:    uuid.New().String(),
		GameID:     gameID,
		DocumentID: documentID,
		ChunkIndex: chunkIndex,
		Page:       chunkIndex + 1,
		Section:    "Combat",
		CharStart:  chunkIndex * 100,
		CharEnd:    chunkIndex*100 + 50,
		Text:       "Roll one die per attacker.",
		Vector:     vector,
	}
}

func TestQdrant_UpsertSearchDelete_Integration(t *testing.T) {
	ctx := context.Background()
	index := newTestIndex(t)

	gameID := "it-" + uuid.New().String()
	documentID := "doc-" + uuid.New().String()

	records := []Record{
		testRecord(gameID, documentID, 0, []float32{1, 0, 0, 0}),
		testRecord(gameID, documentID, 1, []float32{0.9, 0.1, 0, 0}),
		testRecord(gameID, documentID, 2, []float32{0, 0, 1, 0}),
	}
	require.NoError(t, index.Upsert(ctx, records))

	count, err := index.CountByDocument(ctx, documentID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// Query near the first vector: the aligned chunks rank first.
	results, err := index.Search(ctx, gameID, []float32{1, 0, 0, 0}, 10, 0.5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, records[0].ChunkID, results[0].ChunkID)
	assert.Equal(t, gameID, results[0].GameID)
	assert.Equal(t, "Combat", results[0].Section)
	assert.Equal(t, 1, results[0].Page)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}

	// Another game sees nothing.
	other, err := index.Search(ctx, "some-other-game", []float32{1, 0, 0, 0}, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, other)

	require.NoError(t, index.DeleteByDocument(ctx, documentID))
	count, err = index.CountByDocument(ctx, documentID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestQdrant_DimensionValidation_Integration(t *testing.T) {
	ctx := context.Background()
	index := newTestIndex(t)

	err := index.Upsert(ctx, []Record{
		testRecord("game", "doc", 0, []float32{1, 0}),
	})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = index.Search(ctx, "game", []float32{1, 0}, 5, 0)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}
