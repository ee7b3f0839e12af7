package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rahul/ordermind/internal/workflow"
)

// DocumentStore keeps workflow task documents in sqlite. Every write is a
// compare-and-swap on the version column.
type DocumentStore struct {
	DB *sql.DB
}

func NewDocumentStore(db *sql.DB) *DocumentStore {
	return &DocumentStore{DB: db}
}

func (s *DocumentStore) Get(ctx context.Context, id string) (workflow.Document, error) {
	doc := workflow.Document{ID: id}
	err := s.DB.QueryRowContext(ctx, `SELECT data, version FROM documents WHERE id = ?`, id).Scan(&doc.Data, &doc.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return workflow.Document{}, workflow.ErrDocumentNotFound
	}
	if err != nil {
		return workflow.Document{}, err
	}
	return doc, nil
}

func (s *DocumentStore) Put(ctx context.Context, id string, data []byte, expected int64) (int64, error) {
	var res sql.Result
	var err error
	if expected == 0 {
		res, err = s.DB.ExecContext(ctx,
			`INSERT INTO documents (id, data, version) VALUES (?, ?, 1) ON CONFLICT(id) DO NOTHING`,
			id, data)
	} else {
		res, err = s.DB.ExecContext(ctx,
			`UPDATE documents SET data = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND version = ?`,
			data, id, expected)
	}
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, workflow.ErrVersionConflict
	}
	return expected + 1, nil
}

func (s *DocumentStore) List(ctx context.Context) ([]workflow.Document, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, data, version FROM documents ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []workflow.Document
	for rows.Next() {
		var d workflow.Document
		if err := rows.Scan(&d.ID, &d.Data, &d.Version); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
