// Package docstore defines the document-storage contract the serving
// pipeline consumes. Extracted rulebook text is produced upstream by the PDF
// pipeline; documents are immutable once chunked and re-ingestion replaces
// the chunk set for the same document id.
package docstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound reports an absent document id.
var ErrNotFound = errors.New("document not found")

// Document is one ingested rulebook with its extracted text. An empty
// ExtractedText means the PDF pipeline has not run yet; indexing such a
// document is a precondition failure, not an upstream error.
type Document struct {
	ID            string
	GameID        string
	Title         string
	ExtractedText string
	PageCount     int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Store supplies extracted text per document id.
type Store interface {
	Get(ctx context.Context, id string) (*Document, error)
	Put(ctx context.Context, doc *Document) error
	ListByGame(ctx context.Context, gameID string) ([]*Document, error)
}
