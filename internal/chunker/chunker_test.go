package chunker

import (
	"strings"
	"testing"
)

// TestSplit_SingleParagraph tests the trivial case of one short paragraph.
func TestSplit_SingleParagraph(t *testing.T) {
	input := "Setup takes about five minutes."

	chunks := New().Split(input)
	if len(chunks) != 1 {
		t.Fatalf("Expected 1 chunk, got %d", len(chunks))
	}

	c := chunks[0]
	if c.Index != 0 {
		t.Errorf("Index: expected 0, got %d", c.Index)
	}
	if c.Page != 1 {
		t.Errorf("Page: expected 1, got %d", c.Page)
	}
	if c.CharStart != 0 || c.CharEnd != len(input) {
		t.Errorf("Span: expected [0,%d), got [%d,%d)", len(input), c.CharStart, c.CharEnd)
	}
	if c.Text != input {
		t.Errorf("Text: expected %q, got %q", input, c.Text)
	}
	if c.Section != "" {
		t.Errorf("Section: expected empty for headingless text, got %q", c.Section)
	}
}

// TestSplit_PacksParagraphsToTarget tests that consecutive small paragraphs
// share a chunk until the target size is reached.
func TestSplit_PacksParagraphsToTarget(t *testing.T) {
	a := "Players move clockwise."                        // 23 chars
	b := "Skip eliminated players."                       // 24 chars
	c := "A player with no legal move loses their turn."  // 45 chars
	input := a + "\n\n" + b + "\n\n" + c

	chunks := NewWithSizes(60, 120).Split(input)
	if len(chunks) != 2 {
		t.Fatalf("Expected 2 chunks, got %d", len(chunks))
	}

	if !strings.Contains(chunks[0].Text, a) || !strings.Contains(chunks[0].Text, b) {
		t.Errorf("Chunk 0 should contain both small paragraphs, got %q", chunks[0].Text)
	}
	if chunks[1].Text != c {
		t.Errorf("Chunk 1: expected %q, got %q", c, chunks[1].Text)
	}
}

// TestSplit_PageAttribution tests that form feeds advance the page number and
// offsets stay absolute.
func TestSplit_PageAttribution(t *testing.T) {
	input := "First page rules.\fSecond page rules."

	chunks := New().Split(input)
	if len(chunks) != 2 {
		t.Fatalf("Expected 2 chunks, got %d", len(chunks))
	}

	if chunks[0].Page != 1 {
		t.Errorf("Chunk 0 page: expected 1, got %d", chunks[0].Page)
	}
	if chunks[1].Page != 2 {
		t.Errorf("Chunk 1 page: expected 2, got %d", chunks[1].Page)
	}
	if chunks[1].Text != "Second page rules." {
		t.Errorf("Chunk 1 text: got %q", chunks[1].Text)
	}
	wantStart := strings.Index(input, "Second")
	if chunks[1].CharStart != wantStart {
		t.Errorf("Chunk 1 CharStart: expected %d, got %d", wantStart, chunks[1].CharStart)
	}
}

// TestSplit_NeverMergesAcrossPages tests that tiny fragments on adjacent
// pages stay in separate chunks even when they would fit one target chunk.
func TestSplit_NeverMergesAcrossPages(t *testing.T) {
	chunks := New().Split("Short.\fAlso short.")
	if len(chunks) != 2 {
		t.Fatalf("Expected 2 chunks across the page break, got %d", len(chunks))
	}
}

// TestSplit_SectionAttribution tests heading-path attribution, including a
// chunk that starts on the heading line itself.
func TestSplit_SectionAttribution(t *testing.T) {
	input := "# Setup\n\nPlace the board in the middle.\n\n" +
		"## Starting Pieces\n\nEach player takes eight pawns.\n\n" +
		"# Combat\n\nRoll one die per attacker.\n"

	// Small target so every paragraph becomes its own chunk.
	chunks := NewWithSizes(10, 2000).Split(input)
	if len(chunks) != 6 {
		t.Fatalf("Expected 6 chunks, got %d", len(chunks))
	}

	wantSections := []string{
		"Setup",
		"Setup",
		"Setup > Starting Pieces",
		"Setup > Starting Pieces",
		"Combat",
		"Combat",
	}
	for i, want := range wantSections {
		if chunks[i].Section != want {
			t.Errorf("Chunk %d section: expected %q, got %q (text %q)",
				i, want, chunks[i].Section, chunks[i].Text)
		}
	}
}

// TestSplit_OversizedParagraphSplitsOnSentences tests the hard cap: a
// paragraph beyond maxSize is cut at sentence boundaries.
func TestSplit_OversizedParagraphSplitsOnSentences(t *testing.T) {
	sentence := "The attacker rolls one die and adds their combat bonus. "
	input := strings.TrimSpace(strings.Repeat(sentence, 4))

	chunks := NewWithSizes(40, 60).Split(input)
	if len(chunks) < 2 {
		t.Fatalf("Expected the paragraph to split, got %d chunk(s)", len(chunks))
	}

	for i, c := range chunks {
		if c.CharEnd-c.CharStart > 60 {
			t.Errorf("Chunk %d exceeds max size: %d chars", i, c.CharEnd-c.CharStart)
		}
		if !strings.HasSuffix(c.Text, ".") {
			t.Errorf("Chunk %d does not end on a sentence boundary: %q", i, c.Text)
		}
	}
}

// TestSplit_TableBlocksStayWhole tests that table-derived rule blocks are
// their own chunk, never merged with prose and never cut mid-table.
func TestSplit_TableBlocksStayWhole(t *testing.T) {
	table := "[Table on page 4]\nUnit | Move | Attack\nKnight | 2 | 3\nArcher | 1 | 4"
	input := "Units move in spring.\n\n" + table + "\n\nWinter halves movement."

	chunks := New().Split(input)
	if len(chunks) != 3 {
		t.Fatalf("Expected 3 chunks, got %d", len(chunks))
	}
	if chunks[1].Text != table {
		t.Errorf("Table chunk: expected %q, got %q", table, chunks[1].Text)
	}

	// The table stays whole even when it exceeds the hard cap.
	chunks = NewWithSizes(10, 20).Split(input)
	found := false
	for _, c := range chunks {
		if c.Text == table {
			found = true
		}
	}
	if !found {
		t.Errorf("Oversized table block was split: %+v", chunks)
	}
}

// TestLastSentenceEnd tests boundary detection directly.
func TestLastSentenceEnd(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"no terminator here", 0},
		{"One. Two. Trailing words", 10},
		{"Line one\nline two", 9},
		{"Ends mid", 0},
		{"Question? Then more", 10},
	}
	for _, tt := range tests {
		if got := lastSentenceEnd(tt.input); got != tt.want {
			t.Errorf("lastSentenceEnd(%q): expected %d, got %d", tt.input, tt.want, got)
		}
	}
}

// TestSplit_ChunksAreOrderedAndDisjoint tests the structural invariants that
// citations rely on.
func TestSplit_ChunksAreOrderedAndDisjoint(t *testing.T) {
	input := "# Overview\n\nFirst rule paragraph.\n\nSecond rule paragraph.\f" +
		"Third paragraph on a new page.\n\nFourth paragraph."

	chunks := NewWithSizes(20, 2000).Split(input)
	if len(chunks) == 0 {
		t.Fatal("Expected chunks")
	}

	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("Chunk %d has index %d", i, c.Index)
		}
		if c.CharEnd <= c.CharStart {
			t.Errorf("Chunk %d has empty span [%d,%d)", i, c.CharStart, c.CharEnd)
		}
		if input[c.CharStart:c.CharEnd] != c.Text {
			t.Errorf("Chunk %d text does not match its span", i)
		}
		if i > 0 && c.CharStart < chunks[i-1].CharEnd {
			t.Errorf("Chunk %d overlaps chunk %d", i, i-1)
		}
	}
}

// TestSplit_EmptyInput tests that empty and whitespace-only sources produce
// no chunks.
func TestSplit_EmptyInput(t *testing.T) {
	for _, input := range []string{"", "   \n\n  ", "\f\f"} {
		if chunks := New().Split(input); len(chunks) != 0 {
			t.Errorf("Input %q: expected no chunks, got %d", input, len(chunks))
		}
	}
}
