package statestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rulewise/rulewise/internal/ratelimit"
)

// rateLimitStore implements ratelimit.Store. Check-and-decrement for one key
// is serialized by a per-key lock around a read-modify-write transaction;
// different keys proceed independently.
type rateLimitStore struct {
	store *Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// RateLimitStore returns a ratelimit.Store backed by this store.
func (s *Store) RateLimitStore() ratelimit.Store {
	return &rateLimitStore{store: s, locks: make(map[string]*sync.Mutex)}
}

var _ ratelimit.Store = (*rateLimitStore)(nil)

func (r *rateLimitStore) keyLock(key string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[key]
	if !ok {
		l = &sync.Mutex{}
		r.locks[key] = l
	}
	return l
}

func (r *rateLimitStore) Take(ctx context.Context, key string, maxTokens, refillPerSecond float64, now time.Time) (ratelimit.Decision, error) {
	lock := r.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return ratelimit.Decision{}, fmt.Errorf("beginning bucket transaction: %w", err)
	}
	defer tx.Rollback()

	var tokens float64
	var lastNs int64
	err = tx.QueryRowContext(ctx, `
		SELECT tokens_remaining, last_refill_at_ns FROM rate_buckets WHERE key = ?
	`, key).Scan(&tokens, &lastNs)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Buckets are created lazily and start full.
		tokens = maxTokens
		lastNs = now.UnixNano()
	case err != nil:
		return ratelimit.Decision{}, fmt.Errorf("reading bucket: %w", err)
	}

	decision, newTokens, newLast := ratelimit.Apply(tokens, time.Unix(0, lastNs), maxTokens, refillPerSecond, now)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rate_buckets (key, tokens_remaining, last_refill_at_ns)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			tokens_remaining = excluded.tokens_remaining,
			last_refill_at_ns = excluded.last_refill_at_ns
	`, key, newTokens, newLast.UnixNano())
	if err != nil {
		return ratelimit.Decision{}, fmt.Errorf("writing bucket: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return ratelimit.Decision{}, fmt.Errorf("committing bucket: %w", err)
	}
	return decision, nil
}
