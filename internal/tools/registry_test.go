package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTool struct {
	desc  Descriptor
	calls int
	fn    func(args map[string]any) (Result, error)
}

func (s *stubTool) Describe() Descriptor { return s.desc }

func (s *stubTool) Invoke(ctx context.Context, args map[string]any) (Result, error) {
	s.calls++
	if s.fn != nil {
		return s.fn(args)
	}
	return Result{"type": "ok", "tool": s.desc.Name}, nil
}

type brokenTool struct{}

func (brokenTool) Describe() Descriptor { panic("cannot introspect") }
func (brokenTool) Invoke(ctx context.Context, args map[string]any) (Result, error) {
	return nil, nil
}

func TestAliases(t *testing.T) {
	assert.Equal(t, []string{"Find Orders", "find_orders", "findorders"}, Aliases("Find Orders"))
	assert.Equal(t, "find_orders", SnakeCase("FindOrders"))
	assert.Equal(t, "find_orders", SnakeCase("find-orders"))
	assert.Equal(t, "http_server_v2", SnakeCase("HTTPServer v2"))
	assert.Equal(t, "findorders", Compact("Find-Orders!"))
	assert.Equal(t, []string{"list_records", "listrecords"}, Aliases("list_records"))
}

func TestRegistry_DynamicAliases(t *testing.T) {
	r := NewRegistry()
	dyn := &stubTool{desc: Descriptor{Name: "Find Orders", Risk: RiskLow}}
	errs := r.Discover(dyn)
	require.Empty(t, errs)

	for _, name := range []string{"Find Orders", "find_orders", "findorders", "FindOrders", "find-orders"} {
		assert.Same(t, Tool(dyn), r.Get(name), name)
		d, ok := r.Resolve(name)
		require.True(t, ok, name)
		assert.Equal(t, "Find Orders", d.Name)
	}
	_, ok := r.Resolve("find_customers")
	assert.False(t, ok)
}

func TestRegistry_StaticWinsCollision(t *testing.T) {
	r := NewRegistry()
	static := &stubTool{desc: Descriptor{Name: "list_records", Risk: RiskLow}}
	require.NoError(t, r.Register(static))

	dyn := &stubTool{desc: Descriptor{Name: "list_records", Risk: RiskCritical}}
	assert.Empty(t, r.Discover(dyn))
	assert.Same(t, Tool(static), r.Get("list_records"))
	assert.Len(t, r.Catalog(), 1)

	// A static registered after a dynamic tool of the same name evicts it
	// together with its aliases.
	r2 := NewRegistry()
	dyn2 := &stubTool{desc: Descriptor{Name: "Sales Report"}}
	r2.Discover(dyn2)
	assert.Same(t, Tool(dyn2), r2.Get("sales_report"))
	static2 := &stubTool{desc: Descriptor{Name: "Sales Report", Risk: RiskLow}}
	require.NoError(t, r2.Register(static2))
	assert.Same(t, Tool(static2), r2.Get("Sales Report"))
	assert.Same(t, Tool(static2), r2.Get("sales_report"))
	assert.Len(t, r2.Catalog(), 1)

	// A static name also beats the alias of a dynamic tool.
	static3 := &stubTool{desc: Descriptor{Name: "salesreport"}}
	require.NoError(t, r2.Register(static3))
	assert.Same(t, Tool(static3), r2.Get("salesreport"))

	assert.Error(t, r2.Register(&stubTool{desc: Descriptor{Name: "salesreport"}}))
}

func TestRegistry_DiscoverSkipsBrokenPlugins(t *testing.T) {
	r := NewRegistry()
	good := &stubTool{desc: Descriptor{Name: "Track Parcel"}}
	errs := r.Discover(brokenTool{}, &stubTool{desc: Descriptor{Name: ""}}, &stubTool{desc: Descriptor{Name: "x", Risk: "extreme"}}, good)
	assert.Len(t, errs, 3)
	require.Len(t, r.Catalog(), 1)
	assert.Equal(t, "Track Parcel", r.Catalog()[0].Name)
	assert.Equal(t, RiskMedium, r.Catalog()[0].Risk)
}

func TestRegistry_InvokeFoldsErrors(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()
	require.NoError(t, r.Register(&stubTool{
		desc: Descriptor{Name: "fails"},
		fn:   func(map[string]any) (Result, error) { return nil, errors.New("db down") },
	}))
	require.NoError(t, r.Register(&stubTool{
		desc: Descriptor{Name: "panics"},
		fn:   func(map[string]any) (Result, error) { panic("boom") },
	}))

	res := r.Invoke(ctx, "fails", nil)
	assert.True(t, res.IsError())
	assert.Contains(t, res.Message(), "db down")

	res = r.Invoke(ctx, "panics", nil)
	assert.True(t, res.IsError())
	assert.Contains(t, res.Message(), "boom")

	res = r.Invoke(ctx, "nope", nil)
	assert.True(t, res.IsError())
	assert.Contains(t, res.Message(), "not found")
}

func TestResult(t *testing.T) {
	ok := Result{"type": "report"}
	assert.False(t, ok.IsError())
	assert.Equal(t, "", ok.Message())

	fail := ErrorResult("bad", map[string]any{"field": "phone"})
	assert.True(t, fail.IsError())
	assert.Equal(t, "bad", fail.Message())
	assert.JSONEq(t, `{"type":"error","message":"bad","details":{"field":"phone"}}`, fail.JSON())

	var none Result
	assert.True(t, none.IsError())
}
