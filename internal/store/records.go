package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rahul/ordermind/internal/records"
)

// RecordStore keeps domain records as JSON rows in sqlite. Filters are
// evaluated in Go with records.Filter so both stores agree on matching.
type RecordStore struct {
	DB  *sql.DB
	now func() time.Time
}

func NewRecordStore(db *sql.DB) *RecordStore {
	return &RecordStore{DB: db, now: time.Now}
}

func checkTable(table string) error {
	if !records.KnownTable(table) {
		return fmt.Errorf("%w: %s", records.ErrUnknownTable, table)
	}
	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func scanRecords(ctx context.Context, q queryer, table string) ([]records.Record, error) {
	rows, err := q.QueryContext(ctx, `SELECT data FROM records WHERE tbl = ? ORDER BY seq`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []records.Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var rec records.Record
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode %s record: %w", table, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *RecordStore) Query(ctx context.Context, table string, filter records.Filter) ([]records.Record, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	all, err := scanRecords(ctx, s.DB, table)
	if err != nil {
		return nil, err
	}
	var out []records.Record
	for _, rec := range all {
		if filter.Match(rec) {
			out = append(out, rec)
			if filter.Limit > 0 && len(out) >= filter.Limit {
				break
			}
		}
	}
	return out, nil
}

func (s *RecordStore) Get(ctx context.Context, table, id string) (records.Record, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	var data string
	err := s.DB.QueryRowContext(ctx, `SELECT data FROM records WHERE tbl = ? AND id = ?`, table, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", records.ErrNotFound, table, id)
	}
	if err != nil {
		return nil, err
	}
	var rec records.Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *RecordStore) Create(ctx context.Context, table string, values map[string]any) (records.Record, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	rec := records.Record{}
	for k, v := range values {
		rec[k] = v
	}
	if rec.ID() == "" {
		rec["id"] = uuid.NewString()
	}
	ts := s.now().UTC().Format(time.RFC3339Nano)
	rec["created_at"] = ts
	rec["updated_at"] = ts

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO records (tbl, id, data, seq) VALUES (?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM records))`,
		table, rec.ID(), string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s record: %w", table, err)
	}
	// Round-trip so callers see the same value types a later read returns.
	return s.Get(ctx, table, rec.ID())
}

func (s *RecordStore) Update(ctx context.Context, table, id string, values map[string]any) (records.Record, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	rec, err := s.Get(ctx, table, id)
	if err != nil {
		return nil, err
	}
	s.apply(rec, values)
	if err := s.write(ctx, s.DB, table, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *RecordStore) BulkUpdate(ctx context.Context, table string, ids []string, values map[string]any, where records.Filter) (int, error) {
	if err := checkTable(table); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	where.IDs = ids

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	all, err := scanRecords(ctx, tx, table)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, rec := range all {
		if !where.Match(rec) {
			continue
		}
		s.apply(rec, values)
		if err := s.write(ctx, tx, table, rec); err != nil {
			return 0, err
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *RecordStore) write(ctx context.Context, db execer, table string, rec records.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `UPDATE records SET data = ? WHERE tbl = ? AND id = ?`, string(data), table, rec.ID())
	return err
}

func (s *RecordStore) apply(rec records.Record, values map[string]any) {
	for k, v := range values {
		if k == "id" || k == "created_at" {
			continue
		}
		rec[k] = v
	}
	rec["updated_at"] = s.now().UTC().Format(time.RFC3339Nano)
}
