package agent

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahul/ordermind/internal/tools"
)

func newTestOrchestrator() *Orchestrator {
	o := NewOrchestrator(3, time.Millisecond, 0)
	o.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	RegisterDefaultRepairs(o, "91")
	return o
}

func TestOrchestrator_SucceedsFirstTime(t *testing.T) {
	o := newTestOrchestrator()
	var calls int32
	res := o.Execute(context.Background(), "sales_report", map[string]any{"status": "shipped"},
		func(ctx context.Context, name string, args map[string]any) tools.Result {
			atomic.AddInt32(&calls, 1)
			return tools.Result{"type": "report", "matched_count": 2}
		})

	require.False(t, res.IsError())
	assert.Equal(t, int32(1), calls)
	exec := res["execution"].(map[string]any)
	assert.Equal(t, 1, exec["attempts"])
	assert.Equal(t, false, exec["recovered"])
	assert.Len(t, exec["history"], 1)
}

func TestOrchestrator_RecoversOnThirdAttempt(t *testing.T) {
	o := newTestOrchestrator()
	original := map[string]any{"table": "orders", "status": " Shipped ", "sku": "TEA-1"}
	attempt := 0
	res := o.Execute(context.Background(), "list_records", original,
		func(ctx context.Context, name string, args map[string]any) tools.Result {
			attempt++
			if attempt < 3 {
				return tools.ErrorResult("no orders matched the filters", nil)
			}
			return tools.Result{"type": "records", "count": 1}
		})

	require.False(t, res.IsError(), res.Message())
	exec := res["execution"].(map[string]any)
	assert.Equal(t, 3, exec["attempts"])
	assert.Equal(t, true, exec["recovered"])

	history := exec["history"].([]Attempt)
	require.Len(t, history, 3)
	assert.Equal(t, " Shipped ", history[0].Arguments["status"])
	assert.Equal(t, "shipped", history[1].Arguments["status"])
	assert.Equal(t, "TEA-1", history[1].Arguments["sku"])
	assert.NotContains(t, history[2].Arguments, "sku")
	for i := 1; i < len(history); i++ {
		assert.NotEqual(t, history[i-1].Arguments, history[i].Arguments, "attempt %d repeated arguments", i+1)
	}
	assert.Equal(t, " Shipped ", original["status"], "caller arguments must not change")
}

func TestOrchestrator_Exhausted(t *testing.T) {
	o := newTestOrchestrator()
	res := o.Execute(context.Background(), "fetch_tracking_page", map[string]any{"url": "https://x.test"},
		func(ctx context.Context, name string, args map[string]any) tools.Result {
			r := tools.Errorf("connection reset")
			r["retryable"] = true
			return r
		})

	require.True(t, res.IsError())
	assert.Contains(t, res.Message(), "retries exhausted")
	details := res["details"].(map[string]any)
	assert.Len(t, details["history"], 3)
	assert.Equal(t, 3, details["attempts"])
	assert.Equal(t, "connection reset", details["last_error"].(map[string]any)["message"])
	assert.Equal(t, false, details["stopped_early"])
}

func TestOrchestrator_StopsWhenNothingToRepair(t *testing.T) {
	o := newTestOrchestrator()
	var calls int32
	res := o.Execute(context.Background(), "create_remittance_task", map[string]any{"line_items": []any{}},
		func(ctx context.Context, name string, args map[string]any) tools.Result {
			atomic.AddInt32(&calls, 1)
			return tools.Errorf("line_items must be a non-empty array")
		})

	require.True(t, res.IsError())
	assert.Equal(t, int32(1), calls)
	details := res["details"].(map[string]any)
	assert.Equal(t, true, details["stopped_early"])
	assert.Len(t, details["history"], 1)
}

func TestOrchestrator_TimeoutIsRetryable(t *testing.T) {
	o := newTestOrchestrator()
	o.CallTimeout = 20 * time.Millisecond
	release := make(chan struct{})
	defer close(release)

	var calls int32
	res := o.Execute(context.Background(), "get_remittance_task", map[string]any{"task_id": "t1"},
		func(ctx context.Context, name string, args map[string]any) tools.Result {
			if atomic.AddInt32(&calls, 1) == 1 {
				<-release // ignores ctx, like a stuck client
				return tools.Result{"type": "late"}
			}
			return tools.Result{"type": "workflow_task"}
		})

	require.False(t, res.IsError(), res.Message())
	assert.Equal(t, "workflow_task", res.Type())
	history := res["execution"].(map[string]any)["history"].([]Attempt)
	require.Len(t, history, 2)
	assert.Contains(t, history[0].Message, "timed out")
}

func TestOrchestrator_BackoffScalesWithAttempt(t *testing.T) {
	o := NewOrchestrator(3, 10*time.Millisecond, 0)
	var waits []time.Duration
	o.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	o.RegisterRepair("x", func(attempt int, args map[string]any, failure tools.Result) bool {
		args["n"] = attempt
		return true
	})
	o.Execute(context.Background(), "x", nil, func(ctx context.Context, name string, args map[string]any) tools.Result {
		return tools.Errorf("nope")
	})
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, waits)
}

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"98123 45678":       "+919812345678",
		"098123-45678":      "+919812345678",
		"+91 98123 45678":   "+919812345678",
		"0091 9812345678":   "+919812345678",
		"919812345678":      "+919812345678",
		"(415) 555-0123":    "+914155550123",
		"+1 (415) 555-0123": "+14155550123",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizePhone(in, "91"), in)
	}
}

func TestRepairs(t *testing.T) {
	args := map[string]any{"phone": "98123 45678"}
	assert.True(t, PhoneRepair("+91")(1, args, nil))
	assert.Equal(t, "+919812345678", args["phone"])
	assert.False(t, PhoneRepair("91")(2, args, nil), "already normalized")

	args = map[string]any{"model": "Customer", "values": map[string]any{"name": "Asha"}}
	assert.True(t, TableRepair(1, args, nil))
	assert.Equal(t, "customers", args["table"])
	assert.NotContains(t, args, "model")

	args = map[string]any{"table": "Order_Items"}
	assert.False(t, TableRepair(1, args, nil))

	args = map[string]any{"table": "ORDERS"}
	assert.True(t, TableRepair(1, args, nil))
	assert.Equal(t, "orders", args["table"])

	args = map[string]any{"table": "orders", "values": map[string]any{"customer": "c-1", "sku": "TEA-1"}}
	assert.True(t, ForeignKeyRepair(1, args, nil))
	assert.Equal(t, map[string]any{"customer_id": "c-1", "sku": "TEA-1"}, args["values"])
	assert.False(t, ForeignKeyRepair(2, args, nil))

	args = map[string]any{"filters": map[string]any{"courier": "bluedart", "city": "Pune"}, "date_from": "2026/03/01"}
	assert.True(t, FilterRepair(1, args, nil))
	assert.Equal(t, "2026-03-01", args["date_from"])
	assert.True(t, FilterRepair(2, args, nil))
	assert.Equal(t, map[string]any{"courier": "bluedart"}, args["filters"])
	assert.True(t, FilterRepair(3, args, nil))
	assert.NotContains(t, args, "filters")
	assert.False(t, FilterRepair(4, args, nil))
	assert.Equal(t, "2026-03-01", args["date_from"], "date bounds are never dropped")
}
