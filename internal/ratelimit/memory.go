package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryBucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// MemoryStore is an in-memory bucket store for tests and single-process
// deployments. Each key has its own lock so buckets never block each other.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*memoryBucket
}

// NewMemoryStore creates an empty in-memory bucket store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]*memoryBucket)}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) Take(ctx context.Context, key string, maxTokens, refillPerSecond float64, now time.Time) (Decision, error) {
	m.mu.Lock()
	b, ok := m.buckets[key]
	if !ok {
		// New buckets start full.
		b = &memoryBucket{tokens: maxTokens, lastRefill: now}
		m.buckets[key] = b
	}
	m.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	decision, tokens, last := Apply(b.tokens, b.lastRefill, maxTokens, refillPerSecond, now)
	b.tokens = tokens
	b.lastRefill = last
	return decision, nil
}
