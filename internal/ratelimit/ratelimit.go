// Package ratelimit implements token-bucket admission control per caller
// identity. Buckets live in an injected shared store; refills are lazy, on
// each check, with no background timer. A bucket evicted under memory
// pressure is safe to recreate from scratch, starting full.
package ratelimit

import (
	"context"
	"math"
	"time"

	"github.com/rulewise/rulewise/internal/config"
)

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed           bool
	TokensRemaining   float64
	RetryAfterSeconds int
	Limit             float64
}

// Store holds bucket state keyed by "user:<id>" or "ip:<addr>". Take must be
// atomic per key under concurrent callers: two concurrent requests against a
// nearly-exhausted bucket must not both be allowed. Different keys must not
// block each other.
type Store interface {
	Take(ctx context.Context, key string, maxTokens, refillPerSecond float64, now time.Time) (Decision, error)
}

// Limiter performs admission checks against a shared bucket store.
type Limiter struct {
	store Store
	clk   func() time.Time
}

// New creates a Limiter. If clk is nil, time.Now is used.
func New(store Store, clk func() time.Time) *Limiter {
	if clk == nil {
		clk = time.Now
	}
	return &Limiter{store: store, clk: clk}
}

// Check spends one token from the caller's bucket, refilling lazily first.
func (l *Limiter) Check(ctx context.Context, key string, tier config.Tier) (Decision, error) {
	return l.store.Take(ctx, key, tier.MaxTokens, tier.RefillPerSecond, l.clk())
}

// Apply advances a bucket to now and attempts to spend one token. Store
// implementations call this inside their per-key critical section so the
// math lives in exactly one place.
func Apply(tokens float64, lastRefill time.Time, maxTokens, refillPerSecond float64, now time.Time) (Decision, float64, time.Time) {
	if now.After(lastRefill) {
		elapsed := now.Sub(lastRefill).Seconds()
		tokens = math.Min(maxTokens, tokens+elapsed*refillPerSecond)
	}
	// Clock went backwards: treat as no time elapsed.

	if tokens >= 1 {
		tokens--
		return Decision{
			Allowed:         true,
			TokensRemaining: tokens,
			Limit:           maxTokens,
		}, tokens, now
	}

	retryAfter := 0
	if refillPerSecond > 0 {
		retryAfter = int(math.Ceil((1 - tokens) / refillPerSecond))
	}
	return Decision{
		Allowed:           false,
		TokensRemaining:   tokens,
		RetryAfterSeconds: retryAfter,
		Limit:             maxTokens,
	}, tokens, now
}
