// Package mcpserver exposes the rules QA pipeline as MCP tools so agent
// clients can ask questions and search rulebook text directly.
package mcpserver

import "github.com/rulewise/rulewise/internal/synthesizer"

// AskRulesInput defines the input parameters for the ask_rules tool.
type AskRulesInput struct {
	// GameID identifies the game whose rules to consult.
	GameID string `json:"game_id" jsonschema:"required,description=The game whose rules to consult"`
	// Query is the natural-language rules question.
	Query string `json:"query" jsonschema:"required,description=The rules question to answer"`
}

// AskRulesOutput contains the synthesized answer.
type AskRulesOutput struct {
	// Answer is the grounded answer text.
	Answer string `json:"answer"`
	// Citations maps answer claims back to rulebook chunks.
	Citations []synthesizer.Citation `json:"citations"`
	// Confidence is derived from the retrieval score distribution (0-1).
	Confidence float64 `json:"confidence"`
	// Model is the language model that produced the answer.
	Model string `json:"model"`
}

// SearchRulesInput defines the input parameters for the search_rules tool.
type SearchRulesInput struct {
	// GameID identifies the game whose rules to search.
	GameID string `json:"game_id" jsonschema:"required,description=The game whose rules to search"`
	// Query is the semantic search query.
	Query string `json:"query" jsonschema:"required,description=The semantic search query"`
	// MaxResults is the maximum number of chunks to return.
	MaxResults int `json:"max_results,omitempty" jsonschema:"minimum=1,maximum=20,default=6,description=Maximum number of chunks to return"`
	// MinScore is the minimum similarity threshold (0-1).
	MinScore float64 `json:"min_score,omitempty" jsonschema:"minimum=0,maximum=1,default=0.35,description=Minimum similarity score threshold (0-1)"`
}

// SearchRulesOutput contains the matching rulebook chunks.
type SearchRulesOutput struct {
	// Results is the list of matching chunks, best first.
	Results []RuleMatch `json:"results"`
	// Message provides informational context (e.g. nothing matched).
	Message string `json:"message,omitempty"`
}

// RuleMatch is one retrieved rulebook chunk.
type RuleMatch struct {
	// Text is the chunk text.
	Text string `json:"text"`
	// Score is the similarity score (0-1).
	Score float64 `json:"score"`
	// Section is the heading the chunk falls under, if any.
	Section string `json:"section,omitempty"`
	// Page is the 1-based page the chunk starts on.
	Page int `json:"page"`
	// DocumentID identifies the source document.
	DocumentID string `json:"document_id"`
}
