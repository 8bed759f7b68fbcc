package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rulewise/rulewise/internal/errs"
	"github.com/rulewise/rulewise/internal/synthesizer"
)

// flightCall is one in-flight computation shared by concurrent callers.
type flightCall struct {
	done   chan struct{}
	answer *synthesizer.Answer
	err    error
}

// flightGroup ensures at most one computation runs per key. The lock guards
// only map mutation; computations run outside it so unrelated keys never
// block each other. Success and failure propagate equally to all waiters.
type flightGroup struct {
	mu    sync.Mutex
	calls map[string]*flightCall
}

func newFlightGroup() *flightGroup {
	return &flightGroup{calls: make(map[string]*flightCall)}
}

// Do returns fn's result for key, running fn at most once across concurrent
// callers. Waiters are released with an error after timeout so a stuck
// leader cannot strand them, and when their own context is cancelled.
func (g *flightGroup) Do(ctx context.Context, key string, timeout time.Duration, fn func() (*synthesizer.Answer, error)) (*synthesizer.Answer, error) {
	g.mu.Lock()
	if c, ok := g.calls[key]; ok {
		g.mu.Unlock()

		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-c.done:
			return c.answer, c.err
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, errs.Upstream("timed out waiting for in-flight answer", nil)
		}
	}

	c := &flightCall{done: make(chan struct{})}
	g.calls[key] = c
	g.mu.Unlock()

	c.answer, c.err = fn()
	close(c.done)

	g.mu.Lock()
	delete(g.calls, key)
	g.mu.Unlock()

	return c.answer, c.err
}
