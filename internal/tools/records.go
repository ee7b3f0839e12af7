package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rahul/ordermind/internal/records"
)

const defaultListLimit = 50

func tableArg(args map[string]any) (string, error) {
	if t := stringArg(args, "table"); t != "" {
		return t, nil
	}
	if m := stringArg(args, "model"); m != "" {
		// Model names are used verbatim; a mismatch is repaired on retry.
		return m, nil
	}
	return "", fmt.Errorf("table is required")
}

func storeFailure(err error) Result {
	if errors.Is(err, records.ErrUnknownTable) {
		return ErrorResult(err.Error(), map[string]any{"known_tables": []string{
			records.TableOrders, records.TableCustomers, records.TableProducts,
		}})
	}
	return Errorf("%v", err)
}

func recordURL(base, table, id string) string {
	return fmt.Sprintf("%s/records/%s/%s", strings.TrimRight(base, "/"), table, id)
}

// ListRecordsTool queries one table with equality filters.
type ListRecordsTool struct {
	Store records.Store
}

func (t *ListRecordsTool) Describe() Descriptor {
	return Descriptor{
		Name:        "list_records",
		Description: "List records from a table (orders, customers, products) filtered by field values, status and creation date.",
		Risk:        RiskLow,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"table":     map[string]any{"type": "string", "description": "Table name, e.g. orders"},
				"status":    map[string]any{"type": "string", "description": "Optional status filter, e.g. shipped"},
				"filters":   map[string]any{"type": "object", "description": "Optional field=value equality filters"},
				"date_from": map[string]any{"type": "string", "description": "Optional creation date lower bound (YYYY-MM-DD)"},
				"date_to":   map[string]any{"type": "string", "description": "Optional creation date upper bound (YYYY-MM-DD)"},
				"limit":     map[string]any{"type": "integer", "description": "Maximum records to return (default 50)"},
			},
			"required": []string{"table"},
		},
	}
}

func (t *ListRecordsTool) Invoke(ctx context.Context, args map[string]any) (Result, error) {
	table, err := tableArg(args)
	if err != nil {
		return Errorf("%v", err), nil
	}
	filter, err := filterArgs(args)
	if err != nil {
		return Errorf("%v", err), nil
	}
	if filter.Limit, err = intArg(args, "limit", defaultListLimit); err != nil {
		return Errorf("%v", err), nil
	}

	recs, err := t.Store.Query(ctx, table, filter)
	if err != nil {
		return storeFailure(err), nil
	}
	if len(recs) == 0 && len(filter.Equals) > 0 {
		return ErrorResult(fmt.Sprintf("no %s matched the filters", table), map[string]any{"filters": filter.Equals}), nil
	}
	rows := make([]map[string]any, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, r)
	}
	return Result{
		"type":    "records",
		"table":   table,
		"count":   len(rows),
		"records": rows,
	}, nil
}

// filterArgs reads the shared status/filters/date_from/date_to arguments.
// Dates bound created_at.
func filterArgs(args map[string]any) (records.Filter, error) {
	var f records.Filter
	f.Equals = map[string]string{}

	extra, err := mapArg(args, "filters")
	if err != nil {
		return f, err
	}
	for k, v := range extra {
		f.Equals[k] = strings.TrimSpace(fmt.Sprint(v))
	}
	for _, key := range []string{"status", "sku", "courier", "customer_id"} {
		if v := stringArg(args, key); v != "" {
			f.Equals[key] = v
		}
	}
	if f.Since, err = dateArg(args, "date_from"); err != nil {
		return f, err
	}
	if f.Until, err = dateArg(args, "date_to"); err != nil {
		return f, err
	}
	if !f.Until.IsZero() {
		// inclusive upper day
		f.Until = f.Until.AddDate(0, 0, 1).Add(-1)
	}
	if !f.Since.IsZero() || !f.Until.IsZero() {
		f.TimeField = "created_at"
	}
	return f, nil
}

// CreateRecordTool creates one record and returns its id and reference URL.
type CreateRecordTool struct {
	Store   records.Store
	BaseURL string
}

func (t *CreateRecordTool) Describe() Descriptor {
	return Descriptor{
		Name:        "create_record",
		Description: "Create a record in a table (orders, customers, products). Returns its id and URL.",
		Risk:        RiskMedium,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"table":  map[string]any{"type": "string", "description": "Table name, e.g. orders"},
				"values": map[string]any{"type": "object", "description": "Field values for the new record"},
			},
			"required": []string{"table", "values"},
		},
	}
}

func (t *CreateRecordTool) Invoke(ctx context.Context, args map[string]any) (Result, error) {
	table, err := tableArg(args)
	if err != nil {
		return Errorf("%v", err), nil
	}
	values, err := mapArg(args, "values")
	if err != nil {
		return Errorf("%v", err), nil
	}
	if len(values) == 0 {
		return Errorf("values are required"), nil
	}
	if res := checkColumns(table, values); res != nil {
		return res, nil
	}

	rec, err := t.Store.Create(ctx, table, values)
	if err != nil {
		return storeFailure(err), nil
	}
	return Result{
		"type":   "record_created",
		"table":  table,
		"id":     rec.ID(),
		"url":    recordURL(t.BaseURL, table, rec.ID()),
		"record": map[string]any(rec),
	}, nil
}

// UpdateRecordTool changes fields of one record.
type UpdateRecordTool struct {
	Store   records.Store
	BaseURL string
}

func (t *UpdateRecordTool) Describe() Descriptor {
	return Descriptor{
		Name:        "update_record",
		Description: "Update fields of one record by id. Requires confirmed=true.",
		Risk:        RiskHigh,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"table":     map[string]any{"type": "string", "description": "Table name, e.g. orders"},
				"id":        map[string]any{"type": "string", "description": "Record id"},
				"values":    map[string]any{"type": "object", "description": "Fields to change"},
				"confirmed": map[string]any{"type": "boolean", "description": "Set to true after the user confirmed the change"},
			},
			"required": []string{"table", "id", "values"},
		},
	}
}

func (t *UpdateRecordTool) Invoke(ctx context.Context, args map[string]any) (Result, error) {
	table, err := tableArg(args)
	if err != nil {
		return Errorf("%v", err), nil
	}
	id := stringArg(args, "id")
	if id == "" {
		return Errorf("id is required"), nil
	}
	values, err := mapArg(args, "values")
	if err != nil {
		return Errorf("%v", err), nil
	}
	if len(values) == 0 {
		return Errorf("values are required"), nil
	}
	if res := checkColumns(table, values); res != nil {
		return res, nil
	}

	rec, err := t.Store.Update(ctx, table, id, values)
	if err != nil {
		return storeFailure(err), nil
	}
	return Result{
		"type":   "record_updated",
		"table":  table,
		"id":     rec.ID(),
		"url":    recordURL(t.BaseURL, table, rec.ID()),
		"record": map[string]any(rec),
	}, nil
}

func checkColumns(table string, values map[string]any) Result {
	if !records.KnownTable(table) {
		return nil // the store reports unknown tables
	}
	unknown := records.UnknownColumns(table, values)
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return ErrorResult(
		fmt.Sprintf("unknown field(s) for %s: %s", table, strings.Join(unknown, ", ")),
		map[string]any{"unknown_fields": unknown, "columns": records.Columns(table)},
	)
}
