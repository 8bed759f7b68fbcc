// Package chunker splits extracted rulebook text into bounded, citable
// fragments. Page boundaries in the source are marked with form-feed
// characters by the extraction pipeline; each chunk is attributed to the page
// where its text starts and chunks never overlap.
package chunker

import (
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

const (
	// DefaultTargetSize is the preferred chunk size in characters.
	DefaultTargetSize = 800

	// DefaultMaxSize is the hard cap; paragraphs longer than this are split
	// on sentence boundaries.
	DefaultMaxSize = 1200
)

// pageBreak separates pages in extracted rulebook text.
const pageBreak = '\f'

// tableMarker prefixes table-derived rule blocks emitted by the extraction
// pipeline. A table block is one atomic unit: never merged with surrounding
// prose and never split on sentence boundaries.
const tableMarker = "[Table"

// Chunk is a bounded fragment of a document's text.
type Chunk struct {
	Index     int    // Position in document (0, 1, 2...)
	Page      int    // 1-based page the chunk's text starts on
	Section   string // Nearest preceding heading path, e.g. "Movement > Castling"
	CharStart int    // Absolute offset into the source text
	CharEnd   int    // Exclusive end offset; always > CharStart
	Text      string
}

// Chunker splits rulebook text on paragraph and sentence boundaries.
type Chunker struct {
	targetSize int
	maxSize    int
	parser     goldmark.Markdown
}

// New creates a Chunker with default size bounds.
func New() *Chunker {
	return NewWithSizes(DefaultTargetSize, DefaultMaxSize)
}

// NewWithSizes creates a Chunker with explicit size bounds. maxSize values
// below targetSize are raised to targetSize.
func NewWithSizes(targetSize, maxSize int) *Chunker {
	if targetSize <= 0 {
		targetSize = DefaultTargetSize
	}
	if maxSize < targetSize {
		maxSize = targetSize
	}
	md := goldmark.New(
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)
	return &Chunker{
		targetSize: targetSize,
		maxSize:    maxSize,
		parser:     md,
	}
}

type span struct {
	start int
	end   int
}

// Split chunks the full extracted text of one document. Chunks are ordered,
// non-overlapping, and never merge text across a page break.
func (c *Chunker) Split(source string) []Chunk {
	marks := c.sectionMarks([]byte(source))

	var chunks []Chunk
	for _, page := range pageSpans(source) {
		for _, group := range c.groupParagraphs(source, paragraphSpans(source, page)) {
			chunks = append(chunks, Chunk{
				Index:     len(chunks),
				Page:      pageAt(source, group.start),
				Section:   sectionAt(marks, group.start),
				CharStart: group.start,
				CharEnd:   group.end,
				Text:      source[group.start:group.end],
			})
		}
	}
	return chunks
}

// groupParagraphs packs consecutive paragraphs into chunks of roughly
// targetSize characters. Oversized paragraphs are split on sentence
// boundaries so no chunk exceeds maxSize.
func (c *Chunker) groupParagraphs(source string, paras []span) []span {
	var groups []span
	var cur span
	open := false

	flush := func() {
		if open {
			groups = append(groups, cur)
			open = false
		}
	}

	for _, p := range paras {
		if strings.HasPrefix(source[p.start:p.end], tableMarker) {
			flush()
			groups = append(groups, p)
			continue
		}
		if p.end-p.start > c.maxSize {
			flush()
			groups = append(groups, c.splitSentences(source, p)...)
			continue
		}
		if open && (cur.end-cur.start)+(p.end-p.start) > c.targetSize {
			flush()
		}
		if !open {
			cur = p
			open = true
		} else {
			cur.end = p.end
		}
	}
	flush()
	return groups
}

// splitSentences cuts an oversized paragraph at the last sentence end before
// maxSize, falling back to a hard cut when no boundary exists.
func (c *Chunker) splitSentences(source string, p span) []span {
	var parts []span
	start := p.start
	for p.end-start > c.maxSize {
		window := source[start : start+c.maxSize]
		cut := lastSentenceEnd(window)
		if cut <= 0 {
			cut = c.maxSize
		}
		end := trimSpanEnd(source, start, start+cut)
		if end > start {
			parts = append(parts, span{start: start, end: end})
		}
		start = trimSpanStart(source, start+cut, p.end)
	}
	if p.end > start {
		parts = append(parts, span{start: start, end: p.end})
	}
	return parts
}

// lastSentenceEnd returns the offset just past the last sentence terminator
// in s, or 0 if none is found.
func lastSentenceEnd(s string) int {
	for i := len(s) - 1; i > 0; i-- {
		switch s[i] {
		case '\n':
			return i + 1
		case ' ':
			switch s[i-1] {
			case '.', '!', '?':
				return i + 1
			}
		}
	}
	return 0
}

// pageSpans splits the source into per-page spans at form-feed characters.
func pageSpans(source string) []span {
	var pages []span
	start := 0
	for i := 0; i < len(source); i++ {
		if source[i] == pageBreak {
			pages = append(pages, span{start: start, end: i})
			start = i + 1
		}
	}
	pages = append(pages, span{start: start, end: len(source)})
	return pages
}

// pageAt returns the 1-based page number for an absolute offset.
func pageAt(source string, offset int) int {
	return 1 + strings.Count(source[:offset], string(pageBreak))
}

// paragraphSpans finds trimmed paragraph spans inside one page, splitting on
// blank lines.
func paragraphSpans(source string, page span) []span {
	var paras []span
	start := page.start
	i := page.start
	for i < page.end {
		if source[i] == '\n' {
			j := i + 1
			for j < page.end && (source[j] == ' ' || source[j] == '\t' || source[j] == '\r') {
				j++
			}
			if j < page.end && source[j] == '\n' {
				if p, ok := trimSpan(source, start, i); ok {
					paras = append(paras, p)
				}
				start = j + 1
				i = j + 1
				continue
			}
		}
		i++
	}
	if p, ok := trimSpan(source, start, page.end); ok {
		paras = append(paras, p)
	}
	return paras
}

func trimSpan(source string, start, end int) (span, bool) {
	start = trimSpanStart(source, start, end)
	end = trimSpanEnd(source, start, end)
	if end <= start {
		return span{}, false
	}
	return span{start: start, end: end}, true
}

func trimSpanStart(source string, start, end int) int {
	for start < end && isSpace(source[start]) {
		start++
	}
	return start
}

func trimSpanEnd(source string, start, end int) int {
	for end > start && isSpace(source[end-1]) {
		end--
	}
	return end
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == pageBreak
}

type sectionMark struct {
	offset int
	title  string
}

// sectionMarks extracts heading positions so each chunk can be attributed to
// the section it falls under. Rulebooks exported without headings simply get
// empty sections.
func (c *Chunker) sectionMarks(source []byte) []sectionMark {
	reader := text.NewReader(source)
	doc := c.parser.Parser().Parse(reader)

	tree, err := toc.Inspect(doc, source,
		toc.MinDepth(1),
		toc.MaxDepth(3),
		toc.Compact(true),
	)
	if err != nil || len(tree.Items) == 0 {
		return nil
	}

	var marks []sectionMark
	collectMarks(doc, source, tree.Items, nil, &marks)
	sort.Slice(marks, func(i, j int) bool { return marks[i].offset < marks[j].offset })
	return marks
}

// collectMarks recursively walks TOC items, resolving each heading's offset
// in the source and its ancestor path.
func collectMarks(doc ast.Node, source []byte, items toc.Items, ancestors []string, marks *[]sectionMark) {
	for _, item := range items {
		path := append(append([]string(nil), ancestors...), string(item.Title))

		headerNode := findHeaderByID(doc, string(item.ID))
		if headerNode != nil && headerNode.Lines().Len() > 0 {
			// Back up to the start of the heading line so the chunk that
			// opens with the heading marker is attributed to this section.
			off := headerNode.Lines().At(0).Start
			for off > 0 && source[off-1] != '\n' {
				off--
			}
			*marks = append(*marks, sectionMark{
				offset: off,
				title:  strings.Join(path, " > "),
			})
		}

		if len(item.Items) > 0 {
			collectMarks(doc, source, item.Items, path, marks)
		}
	}
}

// findHeaderByID locates a heading node by its auto-generated ID.
func findHeaderByID(node ast.Node, id string) ast.Node {
	var found ast.Node
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering && n.Kind() == ast.KindHeading {
			heading := n.(*ast.Heading)
			headingID, ok := heading.AttributeString("id")
			if ok && string(headingID.([]byte)) == id {
				found = n
				return ast.WalkStop, nil
			}
		}
		return ast.WalkContinue, nil
	})
	return found
}

// sectionAt returns the title of the nearest heading at or before offset.
func sectionAt(marks []sectionMark, offset int) string {
	idx := sort.Search(len(marks), func(i int) bool { return marks[i].offset > offset })
	if idx == 0 {
		return ""
	}
	return marks[idx-1].title
}
