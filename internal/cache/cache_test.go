package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rulewise/rulewise/internal/synthesizer"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercases", "How Does CASTLING Work?", "how does castling work?"},
		{"trims", "  castling  ", "castling"},
		{"collapses internal whitespace", "how  does\tcastling\n work", "how does castling work"},
		{"already normal", "how does castling work", "how does castling work"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input))
		})
	}
}

func TestFingerprint(t *testing.T) {
	// Case and whitespace variants of the same question share a key.
	a := Fingerprint("chess", "How does castling work?")
	b := Fingerprint("chess", "  how   does castling WORK?  ")
	assert.Equal(t, a, b)

	// Same question, different game.
	c := Fingerprint("go", "How does castling work?")
	assert.NotEqual(t, a, c)

	// The separator keeps (game, question) splits unambiguous.
	assert.NotEqual(t, Fingerprint("ab", "c"), Fingerprint("a", "bc"))
}

func TestCache_LookupPutLookup(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := New(NewMemoryStore(), func() time.Time { return now })

	// Cold cache.
	_, hit, err := c.Lookup(ctx, "chess", "How does castling work?")
	require.NoError(t, err)
	assert.False(t, hit)

	answer := &synthesizer.Answer{Text: "Move the king two squares toward the rook.", Confidence: 0.8}
	require.NoError(t, c.Put(ctx, "chess", "How does castling work?", answer))

	// A whitespace/case variant hits the same entry.
	got, hit, err := c.Lookup(ctx, "chess", "  how does CASTLING work?")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, answer.Text, got.Text)

	// The other game stays cold.
	_, hit, err = c.Lookup(ctx, "go", "How does castling work?")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCache_StatsSurviveLookups(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := New(NewMemoryStore(), func() time.Time { return now })

	question := "How many pawns per player?"
	_, _, err := c.Lookup(ctx, "chess", question)
	require.NoError(t, err)
	require.NoError(t, c.Put(ctx, "chess", question, &synthesizer.Answer{Text: "Eight."}))
	_, _, err = c.Lookup(ctx, "chess", question)
	require.NoError(t, err)
	_, _, err = c.Lookup(ctx, "chess", question)
	require.NoError(t, err)

	stats, err := c.StatsByGame(ctx, "chess")
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, int64(2), stats[0].HitCount)
	assert.Equal(t, int64(1), stats[0].MissCount)
	assert.Equal(t, Fingerprint("chess", question), stats[0].QuestionHash)
	assert.Equal(t, now, stats[0].LastHitAt)
}

func TestCache_InvalidateDropsOnlyThatGame(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryStore(), nil)

	require.NoError(t, c.Put(ctx, "chess", "q one", &synthesizer.Answer{Text: "a"}))
	require.NoError(t, c.Put(ctx, "chess", "q two", &synthesizer.Answer{Text: "b"}))
	require.NoError(t, c.Put(ctx, "go", "q one", &synthesizer.Answer{Text: "c"}))

	deleted, err := c.Invalidate(ctx, "chess")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	_, hit, err := c.Lookup(ctx, "chess", "q one")
	require.NoError(t, err)
	assert.False(t, hit, "chess entries should be gone")

	_, hit, err = c.Lookup(ctx, "go", "q one")
	require.NoError(t, err)
	assert.True(t, hit, "go entries should survive")
}

func TestCache_InvalidateRetainsStats(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryStore(), nil)

	_, _, err := c.Lookup(ctx, "chess", "q one")
	require.NoError(t, err)
	require.NoError(t, c.Put(ctx, "chess", "q one", &synthesizer.Answer{Text: "a"}))

	_, err = c.Invalidate(ctx, "chess")
	require.NoError(t, err)

	stats, err := c.StatsByGame(ctx, "chess")
	require.NoError(t, err)
	assert.Len(t, stats, 1, "stats outlive invalidation")
}
