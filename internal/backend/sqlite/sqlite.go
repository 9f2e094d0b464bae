// Package sqlite stores documents in the documents table created by the
// database package migrations.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukerupert/picky/internal/backend"
)

type Backend struct {
	db *sql.DB
}

// New wraps an open, migrated database. Close closes db.
func New(db *sql.DB) *Backend {
	return &Backend{db: db}
}

func (b *Backend) List(ctx context.Context, collection string) ([]backend.Document, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT id, body FROM documents WHERE collection = ? ORDER BY rowid ASC`,
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("failed to close rows", "error", err)
		}
	}()

	docs := []backend.Document{}
	for rows.Next() {
		var (
			doc  backend.Document
			body string
		)
		if err := rows.Scan(&doc.ID, &body); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		doc.Body = []byte(body)
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

func (b *Backend) Get(ctx context.Context, collection, id string) (*backend.Document, error) {
	var body string
	err := b.db.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection = ? AND id = ?`,
		collection, id,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, backend.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &backend.Document{ID: id, Body: []byte(body)}, nil
}

// Put upserts in place so an overwritten document keeps its rowid and with
// it its position in List.
func (b *Backend) Put(ctx context.Context, collection string, doc backend.Document) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, body) VALUES (?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET body = excluded.body, updated_at = datetime('now')
	`, collection, doc.ID, string(doc.Body))
	if err != nil {
		return fmt.Errorf("put document: %w", err)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, collection, id string) error {
	result, err := b.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`,
		collection, id,
	)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return backend.ErrNotFound
	}
	return nil
}

func (b *Backend) ReplaceAll(ctx context.Context, collection string, docs []backend.Document) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE collection = ?`, collection); err != nil {
		return fmt.Errorf("clear collection: %w", err)
	}
	for _, doc := range docs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO documents (collection, id, body) VALUES (?, ?, ?)`,
			collection, doc.ID, string(doc.Body),
		); err != nil {
			return fmt.Errorf("insert document %s: %w", doc.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (b *Backend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

func (b *Backend) Close() error {
	return b.db.Close()
}
