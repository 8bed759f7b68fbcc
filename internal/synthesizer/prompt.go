package synthesizer

import (
	"fmt"
	"strings"

	"github.com/rulewise/rulewise/internal/vectorindex"
)

const systemPrompt = `You are a board-game rules assistant. Answer the player's question using only the rulebook excerpts provided. If the excerpts do not answer the question, say so plainly instead of guessing. Reference excerpts by their [S#] tag when a claim comes from one.`

// buildUserPrompt embeds the retrieved chunks as tagged context so citations
// map back to sources. Chunks arrive ordered by descending relevance.
func buildUserPrompt(question string, chunks []vectorindex.ScoredRecord) string {
	var b strings.Builder
	b.WriteString("Rulebook excerpts:\n\n")
	for i, c := range chunks {
		fmt.Fprintf(&b, "[S%d] page %d", i+1, c.Page)
		if c.Section != "" {
			fmt.Fprintf(&b, ", %s", c.Section)
		}
		b.WriteString("\n")
		b.WriteString(c.Text)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Question: %s\n", question)
	return b.String()
}
