// Package synthesizer turns a question plus retrieved rulebook chunks into a
// grounded answer via the external language model, in one shot or streaming.
package synthesizer

import (
	"context"
	"unicode/utf8"

	"github.com/rulewise/rulewise/internal/errs"
	"github.com/rulewise/rulewise/internal/vectorindex"
)

// Citation maps a claim in the answer back to its source chunk.
type Citation struct {
	Section    string  `json:"section"`
	Snippet    string  `json:"snippet"`
	Page       int     `json:"page"`
	DocumentID string  `json:"document_id"`
	ChunkID    string  `json:"chunk_id"`
	Score      float64 `json:"score"`
}

// Answer is a synthesized, grounded response.
type Answer struct {
	Text             string     `json:"text"`
	Citations        []Citation `json:"citations"`
	PromptTokens     int        `json:"prompt_tokens"`
	CompletionTokens int        `json:"completion_tokens"`
	Confidence       float64    `json:"confidence"`
	Model            string     `json:"model"`
	FinishReason     string     `json:"finish_reason"`
}

// Usage is the model-reported token accounting for one completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// ChatClient abstracts the language model so the concrete provider is
// swappable. Stream invokes onToken for each incremental text fragment; an
// error from onToken aborts the stream and is returned unchanged.
type ChatClient interface {
	Complete(ctx context.Context, system, user string) (string, Usage, string, error)
	Stream(ctx context.Context, system, user string, onToken func(string) error) (string, Usage, string, error)
}

// snippetLength bounds citation snippets.
const snippetLength = 240

// noContextText is returned without a model call when retrieval found
// nothing above threshold. Fabricating unsupported facts is worse than an
// honest miss.
const noContextText = "The indexed rules for this game do not appear to cover that question. Try rephrasing, or check that the rulebook has been ingested."

// Synthesizer builds grounded prompts and invokes the model.
type Synthesizer struct {
	llm   ChatClient
	model string
}

// New creates a Synthesizer for the given chat client and model name.
func New(llm ChatClient, model string) *Synthesizer {
	return &Synthesizer{llm: llm, model: model}
}

// Synthesize produces a complete answer in one model call. Empty retrieval is
// a valid input: it yields a zero-confidence "not found" answer with no
// citations and no model call.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, chunks []vectorindex.ScoredRecord) (*Answer, error) {
	if len(chunks) == 0 {
		return s.noContextAnswer(), nil
	}

	text, usage, finish, err := s.llm.Complete(ctx, systemPrompt, buildUserPrompt(question, chunks))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errs.Upstream("language model request failed", err)
	}

	return s.answer(text, usage, finish, chunks), nil
}

// SynthesizeStream produces an answer incrementally, invoking onToken per
// fragment, then returns the assembled answer with usage metadata.
func (s *Synthesizer) SynthesizeStream(ctx context.Context, question string, chunks []vectorindex.ScoredRecord, onToken func(string) error) (*Answer, error) {
	if len(chunks) == 0 {
		answer := s.noContextAnswer()
		if err := onToken(answer.Text); err != nil {
			return nil, err
		}
		return answer, nil
	}

	text, usage, finish, err := s.llm.Stream(ctx, systemPrompt, buildUserPrompt(question, chunks), onToken)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errs.Upstream("language model stream failed", err)
	}

	return s.answer(text, usage, finish, chunks), nil
}

func (s *Synthesizer) answer(text string, usage Usage, finish string, chunks []vectorindex.ScoredRecord) *Answer {
	return &Answer{
		Text:             text,
		Citations:        citationsFrom(chunks),
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		Confidence:       confidenceFrom(chunks),
		Model:            s.model,
		FinishReason:     finish,
	}
}

func (s *Synthesizer) noContextAnswer() *Answer {
	return &Answer{
		Text:         noContextText,
		Citations:    []Citation{},
		Confidence:   0,
		Model:        s.model,
		FinishReason: "no_context",
	}
}

// confidenceFrom derives confidence from the retrieval score distribution:
// the top score, clamped to [0,1]. Monotonic in the top score by
// construction.
func confidenceFrom(chunks []vectorindex.ScoredRecord) float64 {
	if len(chunks) == 0 {
		return 0
	}
	top := chunks[0].Score
	for _, c := range chunks[1:] {
		if c.Score > top {
			top = c.Score
		}
	}
	if top < 0 {
		return 0
	}
	if top > 1 {
		return 1
	}
	return top
}

func citationsFrom(chunks []vectorindex.ScoredRecord) []Citation {
	citations := make([]Citation, len(chunks))
	for i, c := range chunks {
		citations[i] = Citation{
			Section:    c.Section,
			Snippet:    snippet(c.Text),
			Page:       c.Page,
			DocumentID: c.DocumentID,
			ChunkID:    c.ChunkID,
			Score:      c.Score,
		}
	}
	return citations
}

// snippet truncates citation text, backing up so the cut never lands inside a
// multi-byte rune.
func snippet(text string) string {
	if len(text) <= snippetLength {
		return text
	}
	cut := snippetLength
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
