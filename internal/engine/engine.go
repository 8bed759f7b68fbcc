// Package engine is the serving core: it validates a question, admits it
// through the rate limiter, consults the response cache, and computes a fresh
// answer at most once per identical in-flight question.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rulewise/rulewise/internal/cache"
	"github.com/rulewise/rulewise/internal/config"
	"github.com/rulewise/rulewise/internal/errs"
	"github.com/rulewise/rulewise/internal/ratelimit"
	"github.com/rulewise/rulewise/internal/synthesizer"
	"github.com/rulewise/rulewise/internal/vectorindex"
)

// defaultComputeTimeout bounds retrieval plus synthesis for one question.
const defaultComputeTimeout = 60 * time.Second

// flightWaitSlack extends the waiter timeout past the leader's own deadline
// so waiters see the leader's timeout error rather than racing it.
const flightWaitSlack = 5 * time.Second

// Retriever fetches the chunks relevant to a question within one game.
type Retriever interface {
	Retrieve(ctx context.Context, gameID, question string) ([]vectorindex.ScoredRecord, error)
}

// Synthesizer turns retrieved chunks into a grounded answer.
type Synthesizer interface {
	Synthesize(ctx context.Context, question string, chunks []vectorindex.ScoredRecord) (*synthesizer.Answer, error)
	SynthesizeStream(ctx context.Context, question string, chunks []vectorindex.ScoredRecord, onToken func(string) error) (*synthesizer.Answer, error)
}

// Caller identifies one rate-limit bucket: "user:<key>" for authenticated
// callers, "ip:<addr>" otherwise, plus the tier governing its refill.
type Caller struct {
	Key  string
	Tier config.Tier
}

// Engine answers questions about a game's rules.
type Engine struct {
	retriever Retriever
	synth     Synthesizer
	cache     *cache.Cache
	limiter   *ratelimit.Limiter
	flight    *flightGroup
	timeout   time.Duration
	logger    *slog.Logger
}

// Options tunes optional engine behavior.
type Options struct {
	// ComputeTimeout bounds one retrieval-plus-synthesis pass. Zero means the
	// default of one minute.
	ComputeTimeout time.Duration
	Logger         *slog.Logger
}

// New creates a query engine.
func New(retriever Retriever, synth Synthesizer, responseCache *cache.Cache, limiter *ratelimit.Limiter, opts Options) *Engine {
	if opts.ComputeTimeout <= 0 {
		opts.ComputeTimeout = defaultComputeTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{
		retriever: retriever,
		synth:     synth,
		cache:     responseCache,
		limiter:   limiter,
		flight:    newFlightGroup(),
		timeout:   opts.ComputeTimeout,
		logger:    opts.Logger,
	}
}

// Ask answers one question, blocking until the full answer is available.
// Identical concurrent questions share a single retrieval and synthesis pass.
// The returned Decision is valid even on error so the transport can emit
// rate-limit headers.
func (e *Engine) Ask(ctx context.Context, caller Caller, gameID, question string) (*synthesizer.Answer, ratelimit.Decision, error) {
	if err := validate(gameID, question); err != nil {
		return nil, ratelimit.Decision{}, err
	}

	decision, err := e.limiter.Check(ctx, caller.Key, caller.Tier)
	if err != nil {
		return nil, decision, fmt.Errorf("admission check: %w", err)
	}
	if !decision.Allowed {
		return nil, decision, errs.Admission("rate limit exceeded")
	}

	answer, hit, err := e.cache.Lookup(ctx, gameID, question)
	if err != nil {
		return nil, decision, fmt.Errorf("cache lookup: %w", err)
	}
	if hit {
		e.logger.Debug("Answer served from cache", "game", gameID)
		return answer, decision, nil
	}

	answer, err = e.flight.Do(ctx, cache.Fingerprint(gameID, question), e.timeout+flightWaitSlack, func() (*synthesizer.Answer, error) {
		cctx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()
		return e.compute(cctx, gameID, question)
	})
	return answer, decision, err
}

// compute runs the retrieve-synthesize-store path. The cache is written only
// after full success; a failed or cancelled computation leaves no entry.
func (e *Engine) compute(ctx context.Context, gameID, question string) (*synthesizer.Answer, error) {
	chunks, err := e.retriever.Retrieve(ctx, gameID, question)
	if err != nil {
		return nil, err
	}

	answer, err := e.synth.Synthesize(ctx, question, chunks)
	if err != nil {
		return nil, err
	}

	if err := e.cache.Put(ctx, gameID, question, answer); err != nil {
		// A cache write failure degrades dedupe, not correctness.
		e.logger.Warn("Cache write failed", "game", gameID, "error", err)
	}
	return answer, nil
}

// AskStream answers one question as an event stream. Validation and admission
// failures are returned synchronously, before any event is produced, so the
// transport can map them to status codes; later failures arrive as a terminal
// error event. The channel is closed when the stream ends for any reason.
func (e *Engine) AskStream(ctx context.Context, caller Caller, gameID, question string) (<-chan Event, ratelimit.Decision, error) {
	if err := validate(gameID, question); err != nil {
		return nil, ratelimit.Decision{}, err
	}

	decision, err := e.limiter.Check(ctx, caller.Key, caller.Tier)
	if err != nil {
		return nil, decision, fmt.Errorf("admission check: %w", err)
	}
	if !decision.Allowed {
		return nil, decision, errs.Admission("rate limit exceeded")
	}

	events := make(chan Event, 8)
	go e.streamQuery(ctx, events, gameID, question)
	return events, decision, nil
}

func (e *Engine) streamQuery(ctx context.Context, events chan<- Event, gameID, question string) {
	defer close(events)

	emit := func(ev Event) bool {
		ev.Timestamp = time.Now().UTC()
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}
	finish := func(answer *synthesizer.Answer) {
		citations := answer.Citations
		if citations == nil {
			citations = []synthesizer.Citation{}
		}
		if !emit(Event{Type: EventCitations, Citations: citations}) {
			return
		}
		emit(Event{
			Type:        EventComplete,
			TotalTokens: answer.PromptTokens + answer.CompletionTokens,
			Confidence:  answer.Confidence,
		})
	}
	fail := func(err error) {
		if ctx.Err() != nil {
			// Client is gone; nobody reads a terminal event.
			return
		}
		e.logger.Warn("Streaming answer failed", "game", gameID, "error", err)
		emit(Event{Type: EventError, Message: errs.MessageOf(err), Code: errs.CodeOf(err)})
	}

	answer, hit, err := e.cache.Lookup(ctx, gameID, question)
	if err != nil {
		fail(err)
		return
	}
	if hit {
		// A cached answer streams as one token carrying the full text.
		if !emit(Event{Type: EventToken, Text: answer.Text}) {
			return
		}
		finish(answer)
		return
	}

	cctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	chunks, err := e.retriever.Retrieve(cctx, gameID, question)
	if err != nil {
		fail(err)
		return
	}

	onToken := func(text string) error {
		if !emit(Event{Type: EventToken, Text: text}) {
			return context.Cause(ctx)
		}
		return nil
	}
	answer, err = e.synth.SynthesizeStream(cctx, question, chunks, onToken)
	if err != nil {
		fail(err)
		return
	}
	if ctx.Err() != nil {
		// Cancelled after the final token: no terminal events, no cache entry.
		return
	}

	if err := e.cache.Put(ctx, gameID, question, answer); err != nil {
		e.logger.Warn("Cache write failed", "game", gameID, "error", err)
	}
	finish(answer)
}

func validate(gameID, question string) error {
	if strings.TrimSpace(gameID) == "" {
		return errs.Validation("gameId is required")
	}
	if strings.TrimSpace(question) == "" {
		return errs.Validation("query is required")
	}
	return nil
}
