package records

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a process-local Store. It is safe for concurrent use and
// returns copies so callers never alias stored state.
type MemoryStore struct {
	mu     sync.Mutex
	tables map[string][]Record
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables: make(map[string][]Record),
		now:    time.Now,
	}
}

// SetClock overrides the timestamp source.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryStore) Query(ctx context.Context, table string, filter Filter) ([]Record, error) {
	if !KnownTable(table) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Record
	for _, rec := range m.tables[table] {
		if filter.Match(rec) {
			out = append(out, rec.clone())
			if filter.Limit > 0 && len(out) >= filter.Limit {
				break
			}
		}
	}
	return out, nil
}

func (m *MemoryStore) Get(ctx context.Context, table, id string) (Record, error) {
	if !KnownTable(table) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.tables[table] {
		if rec.ID() == id {
			return rec.clone(), nil
		}
	}
	return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, table, id)
}

func (m *MemoryStore) Create(ctx context.Context, table string, values map[string]any) (Record, error) {
	if !KnownTable(table) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := Record{}
	for k, v := range values {
		rec[k] = v
	}
	if rec.ID() == "" {
		rec["id"] = uuid.NewString()
	}
	ts := m.now().UTC().Format(time.RFC3339Nano)
	rec["created_at"] = ts
	rec["updated_at"] = ts
	m.tables[table] = append(m.tables[table], rec)
	return rec.clone(), nil
}

func (m *MemoryStore) Update(ctx context.Context, table, id string, values map[string]any) (Record, error) {
	if !KnownTable(table) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.tables[table] {
		if rec.ID() == id {
			m.apply(rec, values)
			return rec.clone(), nil
		}
	}
	return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, table, id)
}

func (m *MemoryStore) BulkUpdate(ctx context.Context, table string, ids []string, values map[string]any, where Filter) (int, error) {
	if !KnownTable(table) {
		return 0, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	where.IDs = ids
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, rec := range m.tables[table] {
		if where.Match(rec) {
			m.apply(rec, values)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) apply(rec Record, values map[string]any) {
	for k, v := range values {
		if k == "id" || k == "created_at" {
			continue
		}
		rec[k] = v
	}
	rec["updated_at"] = m.now().UTC().Format(time.RFC3339Nano)
}

func (r Record) clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
