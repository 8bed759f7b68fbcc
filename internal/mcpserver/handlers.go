package mcpserver

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rulewise/rulewise/internal/config"
	"github.com/rulewise/rulewise/internal/engine"
	"github.com/rulewise/rulewise/internal/synthesizer"
)

// localCaller is the shared admission identity for MCP tool calls. MCP
// clients are trusted local agents, so they share one premium bucket instead
// of per-key player buckets.
var localCaller = engine.Caller{
	Key:  "mcp:local",
	Tier: config.TierForRole(config.RolePremium),
}

// makeAskHandler creates the ask_rules tool handler. The full serving path
// applies: cache, dedupe of identical in-flight questions, and admission.
func makeAskHandler(eng *engine.Engine) func(
	context.Context, *mcp.CallToolRequest, AskRulesInput,
) (*mcp.CallToolResult, AskRulesOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AskRulesInput) (
		*mcp.CallToolResult, AskRulesOutput, error,
	) {
		answer, _, err := eng.Ask(ctx, localCaller, input.GameID, input.Query)
		if err != nil {
			return nil, AskRulesOutput{}, fmt.Errorf("answering failed: %w", err)
		}

		citations := answer.Citations
		if citations == nil {
			citations = []synthesizer.Citation{}
		}
		return nil, AskRulesOutput{
			Answer:     answer.Text,
			Citations:  citations,
			Confidence: answer.Confidence,
			Model:      answer.Model,
		}, nil
	}
}

// makeSearchHandler creates the search_rules tool handler. Raw retrieval
// without synthesis: useful when the agent wants to read rule text itself.
func makeSearchHandler(retriever Retriever) func(
	context.Context, *mcp.CallToolRequest, SearchRulesInput,
) (*mcp.CallToolResult, SearchRulesOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchRulesInput) (
		*mcp.CallToolResult, SearchRulesOutput, error,
	) {
		maxResults := input.MaxResults
		if maxResults <= 0 {
			maxResults = config.DefaultTopK
		}
		minScore := input.MinScore
		if minScore <= 0 {
			minScore = config.DefaultMinScore
		}

		records, err := retriever.Retrieve(ctx, input.GameID, input.Query)
		if err != nil {
			return nil, SearchRulesOutput{}, fmt.Errorf("search failed: %w", err)
		}

		results := make([]RuleMatch, 0, len(records))
		for _, rec := range records {
			if rec.Score < minScore {
				continue
			}
			results = append(results, RuleMatch{
				Text:       rec.Text,
				Score:      rec.Score,
				Section:    rec.Section,
				Page:       rec.Page,
				DocumentID: rec.DocumentID,
			})
			if len(results) == maxResults {
				break
			}
		}

		if len(results) == 0 {
			return nil, SearchRulesOutput{
				Results: []RuleMatch{},
				Message: "No matching rules found. Try broader search terms or check that the rulebook is indexed.",
			}, nil
		}
		return nil, SearchRulesOutput{Results: results}, nil
	}
}
