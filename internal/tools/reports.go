package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rahul/ordermind/internal/records"
)

var reportParameters = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"date_from": map[string]any{"type": "string", "description": "Order creation date lower bound (YYYY-MM-DD)"},
		"date_to":   map[string]any{"type": "string", "description": "Order creation date upper bound (YYYY-MM-DD)"},
		"status":    map[string]any{"type": "string", "description": "Optional order status filter"},
		"sku":       map[string]any{"type": "string", "description": "Optional SKU filter"},
		"courier":   map[string]any{"type": "string", "description": "Optional courier filter"},
	},
}

// SalesReportTool aggregates order counts and revenue.
type SalesReportTool struct {
	Store records.Store
}

func (t *SalesReportTool) Describe() Descriptor {
	return Descriptor{
		Name:        "sales_report",
		Description: "Summarize orders for a date range: matched count, revenue and counts per status.",
		Risk:        RiskLow,
		Parameters:  reportParameters,
	}
}

func (t *SalesReportTool) Invoke(ctx context.Context, args map[string]any) (Result, error) {
	filter, err := filterArgs(args)
	if err != nil {
		return Errorf("%v", err), nil
	}
	recs, err := t.Store.Query(ctx, records.TableOrders, filter)
	if err != nil {
		return storeFailure(err), nil
	}

	var revenue float64
	byStatus := map[string]int{}
	for _, r := range recs {
		byStatus[r.String("status")]++
		if r.String("status") != "cancelled" {
			revenue += r.Float("amount")
		}
	}
	return Result{
		"type":          "report",
		"matched_count": len(recs),
		"revenue":       revenue,
		"by_status":     byStatus,
		"filters":       filter.Equals,
	}, nil
}

// OrderSheetWriter renders orders to a downloadable spreadsheet.
type OrderSheetWriter interface {
	WriteOrders(ctx context.Context, name string, recs []records.Record) (string, error)
}

// ExportSpreadsheetTool exports matching orders as xlsx.
type ExportSpreadsheetTool struct {
	Store  records.Store
	Writer OrderSheetWriter
}

func (t *ExportSpreadsheetTool) Describe() Descriptor {
	params := CloneArgs(reportParameters)
	params["properties"].(map[string]any)["title"] = map[string]any{
		"type": "string", "description": "Short title used in the file name",
	}
	return Descriptor{
		Name:        "export_spreadsheet",
		Description: "Export matching orders to an .xlsx spreadsheet and return a download URL.",
		Risk:        RiskMedium,
		Parameters:  params,
	}
}

func (t *ExportSpreadsheetTool) Invoke(ctx context.Context, args map[string]any) (Result, error) {
	filter, err := filterArgs(args)
	if err != nil {
		return Errorf("%v", err), nil
	}
	recs, err := t.Store.Query(ctx, records.TableOrders, filter)
	if err != nil {
		return storeFailure(err), nil
	}
	if len(recs) == 0 {
		return ErrorResult("no orders matched the export filters", map[string]any{"filters": filter.Equals}), nil
	}

	title := stringArg(args, "title")
	if title == "" {
		keys := make([]string, 0, len(filter.Equals))
		for k, v := range filter.Equals {
			keys = append(keys, k+"-"+v)
		}
		sort.Strings(keys)
		title = "orders " + strings.Join(keys, " ")
	}
	url, err := t.Writer.WriteOrders(ctx, title, recs)
	if err != nil {
		return nil, fmt.Errorf("failed to write spreadsheet: %w", err)
	}
	return Result{
		"type": "spreadsheet",
		"url":  url,
		"rows": len(recs),
	}, nil
}
