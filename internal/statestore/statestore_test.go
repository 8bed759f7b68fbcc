package statestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rulewise/rulewise/internal/cache"
	"github.com/rulewise/rulewise/internal/config"
	"github.com/rulewise/rulewise/internal/docstore"
	"github.com/rulewise/rulewise/internal/ratelimit"
	"github.com/rulewise/rulewise/internal/synthesizer"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_MigratesAndReopens(t *testing.T) {
	dir := t.TempDir()

	store, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, store.Health(context.Background()))
	require.NoError(t, store.Close())

	// Reopening must not re-run applied migrations.
	store, err = New(dir)
	require.NoError(t, err)
	defer store.Close()
	assert.NoError(t, store.Health(context.Background()))
}

func TestDocumentStore_PutGetList(t *testing.T) {
	ctx := context.Background()
	docs := newTestStore(t).DocumentStore()

	_, err := docs.Get(ctx, "missing")
	assert.ErrorIs(t, err, docstore.ErrNotFound)

	doc := &docstore.Document{
		ID:            "doc-1",
		GameID:        "chess",
		Title:         "Chess Rulebook",
		ExtractedText: "Page one.\fPage two.",
		PageCount:     2,
	}
	require.NoError(t, docs.Put(ctx, doc))

	got, err := docs.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "chess", got.GameID)
	assert.Equal(t, "Chess Rulebook", got.Title)
	assert.Equal(t, doc.ExtractedText, got.ExtractedText)
	assert.Equal(t, 2, got.PageCount)
	assert.WithinDuration(t, time.Now(), got.UpdatedAt, time.Minute)

	// Put is an upsert: re-adding replaces the stored text.
	doc.ExtractedText = "Revised page one.\fPage two."
	require.NoError(t, docs.Put(ctx, doc))
	got, err = docs.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Contains(t, got.ExtractedText, "Revised")

	require.NoError(t, docs.Put(ctx, &docstore.Document{ID: "doc-2", GameID: "chess", ExtractedText: "x", PageCount: 1}))
	require.NoError(t, docs.Put(ctx, &docstore.Document{ID: "doc-3", GameID: "go", ExtractedText: "y", PageCount: 1}))

	listed, err := docs.ListByGame(ctx, "chess")
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "doc-1", listed[0].ID)
	assert.Equal(t, "doc-2", listed[1].ID)
}

func TestCacheStore_RoundTripThroughCache(t *testing.T) {
	ctx := context.Background()
	c := cache.New(newTestStore(t).CacheStore(), nil)

	_, hit, err := c.Lookup(ctx, "chess", "How does castling work?")
	require.NoError(t, err)
	require.False(t, hit)

	answer := &synthesizer.Answer{
		Text:       "Move the king two squares toward the rook.",
		Citations:  []synthesizer.Citation{{ChunkID: "c1", Page: 7, Section: "Castling", Score: 0.82}},
		Confidence: 0.82,
		Model:      "gpt-4o",
	}
	require.NoError(t, c.Put(ctx, "chess", "How does castling work?", answer))

	got, hit, err := c.Lookup(ctx, "chess", "  HOW does castling work? ")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, answer.Text, got.Text)
	require.Len(t, got.Citations, 1)
	assert.Equal(t, "c1", got.Citations[0].ChunkID)
	assert.InDelta(t, 0.82, got.Confidence, 1e-9)

	stats, err := c.StatsByGame(ctx, "chess")
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, int64(1), stats[0].HitCount)
	assert.Equal(t, int64(1), stats[0].MissCount)
}

func TestCacheStore_InvalidateScopedToGame(t *testing.T) {
	ctx := context.Background()
	c := cache.New(newTestStore(t).CacheStore(), nil)

	require.NoError(t, c.Put(ctx, "chess", "q one", &synthesizer.Answer{Text: "a"}))
	require.NoError(t, c.Put(ctx, "chess", "q two", &synthesizer.Answer{Text: "b"}))
	require.NoError(t, c.Put(ctx, "go", "q one", &synthesizer.Answer{Text: "c"}))

	deleted, err := c.Invalidate(ctx, "chess")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	_, hit, err := c.Lookup(ctx, "go", "q one")
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestRateLimitStore_PersistsBuckets(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := New(dir)
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter := ratelimit.New(store.RateLimitStore(), func() time.Time { return now })
	tier := config.Tier{MaxTokens: 2, RefillPerSecond: 0}

	d, err := limiter.Check(ctx, "user:alpha", tier)
	require.NoError(t, err)
	require.True(t, d.Allowed)
	d, err = limiter.Check(ctx, "user:alpha", tier)
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.NoError(t, store.Close())

	// Bucket state survives a restart: the third request is still denied.
	store, err = New(dir)
	require.NoError(t, err)
	defer store.Close()

	limiter = ratelimit.New(store.RateLimitStore(), func() time.Time { return now })
	d, err = limiter.Check(ctx, "user:alpha", tier)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}
