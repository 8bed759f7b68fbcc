// Package cache deduplicates identical (game, normalized-question) requests.
// Answers and hit/miss counters live in an injected store so the counters
// survive restarts and tests can substitute an in-memory implementation.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/rulewise/rulewise/internal/synthesizer"
)

// ErrEntryNotFound reports a cache miss.
var ErrEntryNotFound = errors.New("cache entry not found")

// Entry is one cached answer keyed by fingerprint.
type Entry struct {
	Fingerprint string
	GameID      string
	Answer      synthesizer.Answer
	CreatedAt   time.Time
}

// Stats is the durable hit/miss record for one question, keyed by
// (gameID, questionHash) for the admin analytics consumer. Stats rows outlive
// the cached answer itself.
type Stats struct {
	GameID       string    `json:"game_id"`
	QuestionHash string    `json:"question_hash"`
	HitCount     int64     `json:"hit_count"`
	MissCount    int64     `json:"miss_count"`
	CreatedAt    time.Time `json:"created_at"`
	LastHitAt    time.Time `json:"last_hit_at"`
}

// Store is the shared persistence handle. All mutations to a single
// fingerprint must be serialized by the implementation; different keys must
// not block each other.
type Store interface {
	GetEntry(ctx context.Context, fingerprint string) (*Entry, error)
	PutEntry(ctx context.Context, entry *Entry) error
	DeleteEntriesByGame(ctx context.Context, gameID string) (int64, error)
	RecordHit(ctx context.Context, gameID, questionHash string, at time.Time) error
	RecordMiss(ctx context.Context, gameID, questionHash string, at time.Time) error
	StatsByGame(ctx context.Context, gameID string) ([]Stats, error)
}

// Cache is the response cache over an injected store.
type Cache struct {
	store Store
	clk   func() time.Time
}

// New creates a response cache. If clk is nil, time.Now is used.
func New(store Store, clk func() time.Time) *Cache {
	if clk == nil {
		clk = time.Now
	}
	return &Cache{store: store, clk: clk}
}

// Normalize trims, lowercases, and collapses internal whitespace so two
// questions differing only in case or spacing share a fingerprint.
func Normalize(question string) string {
	return strings.Join(strings.Fields(strings.ToLower(question)), " ")
}

// Fingerprint derives the deterministic cache key for a (game, question)
// pair. The \x01 separator keeps (ab, c) and (a, bc) distinct.
func Fingerprint(gameID, question string) string {
	sum := sha256.Sum256([]byte(gameID + "\x01" + Normalize(question)))
	return hex.EncodeToString(sum[:])
}

// Lookup resolves a question against the cache, recording a hit or miss in
// the durable stats. Returns the cached answer when present.
func (c *Cache) Lookup(ctx context.Context, gameID, question string) (*synthesizer.Answer, bool, error) {
	fp := Fingerprint(gameID, question)
	now := c.clk()

	entry, err := c.store.GetEntry(ctx, fp)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			if err := c.store.RecordMiss(ctx, gameID, fp, now); err != nil {
				return nil, false, err
			}
			return nil, false, nil
		}
		return nil, false, err
	}

	if err := c.store.RecordHit(ctx, gameID, fp, now); err != nil {
		return nil, false, err
	}
	answer := entry.Answer
	return &answer, true, nil
}

// Put stores a freshly computed answer. Failed computations are never stored,
// so a failure cannot poison the cache.
func (c *Cache) Put(ctx context.Context, gameID, question string, answer *synthesizer.Answer) error {
	return c.store.PutEntry(ctx, &Entry{
		Fingerprint: Fingerprint(gameID, question),
		GameID:      gameID,
		Answer:      *answer,
		CreatedAt:   c.clk(),
	})
}

// Invalidate drops every cached answer derived from gameID. Called whenever
// the game's published rules change; stale answers must never outlive a rules
// update. Stats rows are retained.
func (c *Cache) Invalidate(ctx context.Context, gameID string) (int64, error) {
	return c.store.DeleteEntriesByGame(ctx, gameID)
}

// StatsByGame returns the durable hit/miss records for a game.
func (c *Cache) StatsByGame(ctx context.Context, gameID string) ([]Stats, error) {
	return c.store.StatsByGame(ctx, gameID)
}
