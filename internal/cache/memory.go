package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and single-process deployments.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*Entry
	stats   map[string]*Stats // keyed gameID + "\x01" + questionHash
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*Entry),
		stats:   make(map[string]*Stats),
	}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) GetEntry(ctx context.Context, fingerprint string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[fingerprint]
	if !ok {
		return nil, ErrEntryNotFound
	}
	cp := *entry
	return &cp, nil
}

func (m *MemoryStore) PutEntry(ctx context.Context, entry *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *entry
	m.entries[entry.Fingerprint] = &cp
	return nil
}

func (m *MemoryStore) DeleteEntriesByGame(ctx context.Context, gameID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var dropped int64
	for fp, entry := range m.entries {
		if entry.GameID == gameID {
			delete(m.entries, fp)
			dropped++
		}
	}
	return dropped, nil
}

func (m *MemoryStore) RecordHit(ctx context.Context, gameID, questionHash string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stat(gameID, questionHash, at)
	s.HitCount++
	s.LastHitAt = at
	return nil
}

func (m *MemoryStore) RecordMiss(ctx context.Context, gameID, questionHash string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stat(gameID, questionHash, at)
	s.MissCount++
	return nil
}

func (m *MemoryStore) StatsByGame(ctx context.Context, gameID string) ([]Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Stats
	for _, s := range m.stats {
		if s.GameID == gameID {
			out = append(out, *s)
		}
	}
	return out, nil
}

// stat returns the stats row for a question, creating it on first use.
// Callers must hold mu.
func (m *MemoryStore) stat(gameID, questionHash string, at time.Time) *Stats {
	key := gameID + "\x01" + questionHash
	s, ok := m.stats[key]
	if !ok {
		s = &Stats{GameID: gameID, QuestionHash: questionHash, CreatedAt: at}
		m.stats[key] = s
	}
	return s
}
