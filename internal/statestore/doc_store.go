package statestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rulewise/rulewise/internal/docstore"
)

// documentStore implements docstore.Store.
type documentStore struct {
	store *Store
}

// DocumentStore returns a docstore.Store backed by this store.
func (s *Store) DocumentStore() docstore.Store {
	return &documentStore{store: s}
}

var _ docstore.Store = (*documentStore)(nil)

func (d *documentStore) Get(ctx context.Context, id string) (*docstore.Document, error) {
	row := d.store.db.QueryRowContext(ctx, `
		SELECT id, game_id, title, extracted_text, page_count, created_at, updated_at
		FROM documents WHERE id = ?
	`, id)

	var doc docstore.Document
	var createdAt, updatedAt sql.NullTime
	err := row.Scan(&doc.ID, &doc.GameID, &doc.Title, &doc.ExtractedText, &doc.PageCount, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, docstore.ErrNotFound
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	if createdAt.Valid {
		doc.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		doc.UpdatedAt = updatedAt.Time
	}
	return &doc, nil
}

func (d *documentStore) Put(ctx context.Context, doc *docstore.Document) error {
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	_, err := d.store.db.ExecContext(ctx, `
		INSERT INTO documents (id, game_id, title, extracted_text, page_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			game_id = excluded.game_id,
			title = excluded.title,
			extracted_text = excluded.extracted_text,
			page_count = excluded.page_count,
			updated_at = excluded.updated_at
	`, doc.ID, doc.GameID, doc.Title, doc.ExtractedText, doc.PageCount, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}

func (d *documentStore) ListByGame(ctx context.Context, gameID string) ([]*docstore.Document, error) {
	rows, err := d.store.db.QueryContext(ctx, `
		SELECT id, game_id, title, extracted_text, page_count, created_at, updated_at
		FROM documents WHERE game_id = ? ORDER BY id
	`, gameID)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []*docstore.Document
	for rows.Next() {
		var doc docstore.Document
		var createdAt, updatedAt sql.NullTime
		if err := rows.Scan(&doc.ID, &doc.GameID, &doc.Title, &doc.ExtractedText, &doc.PageCount, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		if createdAt.Valid {
			doc.CreatedAt = createdAt.Time
		}
		if updatedAt.Valid {
			doc.UpdatedAt = updatedAt.Time
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}
