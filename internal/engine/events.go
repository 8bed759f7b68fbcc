package engine

import (
	"time"

	"github.com/rulewise/rulewise/internal/synthesizer"
)

// EventType tags a streaming event.
type EventType string

const (
	// EventToken carries an incremental text fragment.
	EventToken EventType = "token"
	// EventCitations carries the answer's sources, possibly zero.
	EventCitations EventType = "citations"
	// EventComplete terminates a successful stream.
	EventComplete EventType = "complete"
	// EventError terminates a failed stream.
	EventError EventType = "error"
)

// Event is one frame of a streaming answer. A successful stream is always
// zero-or-more token events, exactly one citations event, then complete; a
// failed stream ends with a single error event instead.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// Token
	Text string `json:"text,omitempty"`

	// Citations
	Citations []synthesizer.Citation `json:"citations,omitempty"`

	// Complete. Both fields serialize even at zero; an empty-retrieval
	// answer legitimately completes with confidence 0.
	TotalTokens int     `json:"total_tokens"`
	Confidence  float64 `json:"confidence"`

	// Error
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}
