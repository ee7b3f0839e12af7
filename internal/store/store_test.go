package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahul/ordermind/internal/agent"
	"github.com/rahul/ordermind/internal/records"
	"github.com/rahul/ordermind/internal/workflow"
)

var (
	_ records.Store          = (*RecordStore)(nil)
	_ workflow.DocumentStore = (*DocumentStore)(nil)
	_ agent.HistoryStore     = (*HistoryStore)(nil)
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "ordermind.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestHistoryStore_RoundTrip(t *testing.T) {
	h := NewHistoryStore(openTestDB(t))

	turns := []agent.Turn{
		agent.UserTurn("how many orders shipped today?"),
		{Role: agent.RoleAssistant, ToolCalls: []agent.ToolCall{{ID: "c1", Name: "sales_report", Arguments: `{"status":"shipped"}`}}},
		{Role: agent.RoleTool, ToolCallID: "c1", Name: "sales_report", Content: `{"type":"report","matched_count":4}`},
		{Role: agent.RoleAssistant, Content: "4 orders shipped today."},
	}
	require.NoError(t, h.AppendTurns("telegram:1", turns))
	require.NoError(t, h.AppendTurns("telegram:2", []agent.Turn{agent.UserTurn("other chat")}))

	got, err := h.GetHistory("telegram:1", 10)
	require.NoError(t, err)
	assert.Equal(t, turns, got)

	got, err = h.GetHistory("telegram:1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, agent.RoleTool, got[0].Role)
	assert.Equal(t, "4 orders shipped today.", got[1].Content)

	require.NoError(t, h.Clear("telegram:1"))
	got, err = h.GetHistory("telegram:1", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDocumentStore_CompareAndSwap(t *testing.T) {
	ctx := context.Background()
	s := NewDocumentStore(openTestDB(t))

	v, err := s.Put(ctx, "task-1", []byte(`{"a":1}`), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	_, err = s.Put(ctx, "task-1", []byte(`{"a":2}`), 0)
	assert.ErrorIs(t, err, workflow.ErrVersionConflict)

	v, err = s.Put(ctx, "task-1", []byte(`{"a":2}`), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	_, err = s.Put(ctx, "task-1", []byte(`{"a":3}`), 1)
	assert.ErrorIs(t, err, workflow.ErrVersionConflict)

	doc, err := s.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":2}`, string(doc.Data))
	assert.Equal(t, int64(2), doc.Version)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, workflow.ErrDocumentNotFound)

	docs, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestDocumentStore_ConcurrentWritersOneWins(t *testing.T) {
	ctx := context.Background()
	s := NewDocumentStore(openTestDB(t))
	_, err := s.Put(ctx, "task-1", []byte(`{}`), 0)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Put(ctx, "task-1", []byte(`{"claimed":true}`), 1); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestRecordStore(t *testing.T) {
	ctx := context.Background()
	s := NewRecordStore(openTestDB(t))
	s.now = func() time.Time { return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC) }

	var ids []string
	for _, sku := range []string{"TEA-1", "TEA-1", "MUG-2"} {
		rec, err := s.Create(ctx, records.TableOrders, map[string]any{"sku": sku, "status": "shipped", "amount": 10})
		require.NoError(t, err)
		ids = append(ids, rec.ID())
	}
	assert.Equal(t, 10.0, mustGet(t, s, ids[0]).Float("amount"))

	recs, err := s.Query(ctx, records.TableOrders, records.Filter{Equals: map[string]string{"sku": "tea-1"}})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, ids[0], recs[0].ID())

	n, err := s.BulkUpdate(ctx, records.TableOrders, ids[:2], map[string]any{"status": "delivered"},
		records.Filter{Equals: map[string]string{"status": "shipped"}})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.BulkUpdate(ctx, records.TableOrders, ids, map[string]any{"status": "remitted"},
		records.Filter{Equals: map[string]string{"status": "delivered"}})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "shipped", mustGet(t, s, ids[2]).String("status"))

	updated, err := s.Update(ctx, records.TableOrders, ids[2], map[string]any{"courier": "bluedart", "id": "hijack"})
	require.NoError(t, err)
	assert.Equal(t, ids[2], updated.ID())
	assert.Equal(t, "bluedart", updated.String("courier"))

	_, err = s.Get(ctx, records.TableOrders, "missing")
	assert.ErrorIs(t, err, records.ErrNotFound)
	_, err = s.Query(ctx, "order", records.Filter{})
	assert.ErrorIs(t, err, records.ErrUnknownTable)
}

func mustGet(t *testing.T, s *RecordStore, id string) records.Record {
	t.Helper()
	rec, err := s.Get(context.Background(), records.TableOrders, id)
	require.NoError(t, err)
	return rec
}

func TestWorkflowOnSqlite(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	recs := NewRecordStore(db)
	for i := 0; i < 5; i++ {
		_, err := recs.Create(ctx, records.TableOrders, map[string]any{"sku": "TEA-1", "courier": "bluedart", "status": "shipped"})
		require.NoError(t, err)
	}
	engine := workflow.NewEngine(NewDocumentStore(db), recs, nil)

	task, err := engine.Create(ctx, "http:test", []workflow.LineItem{{SKU: "TEA-1"}})
	require.NoError(t, err)
	assert.Equal(t, 5, task.MatchedCount())

	task, err = engine.Confirm(ctx, task.ID, workflow.StepConfirmDelivery)
	require.NoError(t, err)
	assert.Equal(t, workflow.StepConfirmRemitted, task.CurrentStep)

	delivered, err := recs.Query(ctx, records.TableOrders, records.Filter{Equals: map[string]string{"status": "delivered"}})
	require.NoError(t, err)
	assert.Len(t, delivered, 5)
}
