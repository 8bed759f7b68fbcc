package statestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rulewise/rulewise/internal/cache"
	"github.com/rulewise/rulewise/internal/synthesizer"
)

// cacheStore implements cache.Store. Answers are serialized as JSON; hit and
// miss counters are single UPSERT statements so concurrent callers for the
// same question never lose updates.
type cacheStore struct {
	store *Store
}

// CacheStore returns a cache.Store backed by this store.
func (s *Store) CacheStore() cache.Store {
	return &cacheStore{store: s}
}

var _ cache.Store = (*cacheStore)(nil)

func (c *cacheStore) GetEntry(ctx context.Context, fingerprint string) (*cache.Entry, error) {
	row := c.store.db.QueryRowContext(ctx, `
		SELECT fingerprint, game_id, answer_json, created_at
		FROM cache_entries WHERE fingerprint = ?
	`, fingerprint)

	var entry cache.Entry
	var answerJSON string
	var createdAt sql.NullTime
	err := row.Scan(&entry.Fingerprint, &entry.GameID, &answerJSON, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, cache.ErrEntryNotFound
		}
		return nil, fmt.Errorf("scanning cache entry: %w", err)
	}

	var answer synthesizer.Answer
	if err := json.Unmarshal([]byte(answerJSON), &answer); err != nil {
		return nil, fmt.Errorf("unmarshaling cached answer: %w", err)
	}
	entry.Answer = answer
	if createdAt.Valid {
		entry.CreatedAt = createdAt.Time
	}
	return &entry, nil
}

func (c *cacheStore) PutEntry(ctx context.Context, entry *cache.Entry) error {
	answerJSON, err := json.Marshal(entry.Answer)
	if err != nil {
		return fmt.Errorf("marshaling answer: %w", err)
	}

	_, err = c.store.db.ExecContext(ctx, `
		INSERT INTO cache_entries (fingerprint, game_id, answer_json, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET
			game_id = excluded.game_id,
			answer_json = excluded.answer_json,
			created_at = excluded.created_at
	`, entry.Fingerprint, entry.GameID, string(answerJSON), entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("saving cache entry: %w", err)
	}
	return nil
}

func (c *cacheStore) DeleteEntriesByGame(ctx context.Context, gameID string) (int64, error) {
	result, err := c.store.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE game_id = ?`, gameID)
	if err != nil {
		return 0, fmt.Errorf("invalidating cache entries: %w", err)
	}
	return result.RowsAffected()
}

func (c *cacheStore) RecordHit(ctx context.Context, gameID, questionHash string, at time.Time) error {
	_, err := c.store.db.ExecContext(ctx, `
		INSERT INTO cache_stats (game_id, question_hash, hit_count, miss_count, created_at, last_hit_at)
		VALUES (?, ?, 1, 0, ?, ?)
		ON CONFLICT(game_id, question_hash) DO UPDATE SET
			hit_count = hit_count + 1,
			last_hit_at = excluded.last_hit_at
	`, gameID, questionHash, at, at)
	if err != nil {
		return fmt.Errorf("recording cache hit: %w", err)
	}
	return nil
}

func (c *cacheStore) RecordMiss(ctx context.Context, gameID, questionHash string, at time.Time) error {
	_, err := c.store.db.ExecContext(ctx, `
		INSERT INTO cache_stats (game_id, question_hash, hit_count, miss_count, created_at)
		VALUES (?, ?, 0, 1, ?)
		ON CONFLICT(game_id, question_hash) DO UPDATE SET
			miss_count = miss_count + 1
	`, gameID, questionHash, at)
	if err != nil {
		return fmt.Errorf("recording cache miss: %w", err)
	}
	return nil
}

func (c *cacheStore) StatsByGame(ctx context.Context, gameID string) ([]cache.Stats, error) {
	rows, err := c.store.db.QueryContext(ctx, `
		SELECT game_id, question_hash, hit_count, miss_count, created_at, last_hit_at
		FROM cache_stats WHERE game_id = ? ORDER BY question_hash
	`, gameID)
	if err != nil {
		return nil, fmt.Errorf("listing cache stats: %w", err)
	}
	defer rows.Close()

	var stats []cache.Stats
	for rows.Next() {
		var s cache.Stats
		var createdAt, lastHitAt sql.NullTime
		if err := rows.Scan(&s.GameID, &s.QuestionHash, &s.HitCount, &s.MissCount, &createdAt, &lastHitAt); err != nil {
			return nil, fmt.Errorf("scanning cache stats: %w", err)
		}
		if createdAt.Valid {
			s.CreatedAt = createdAt.Time
		}
		if lastHitAt.Valid {
			s.LastHitAt = lastHitAt.Time
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}
