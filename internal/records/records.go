// Package records defines the narrow contract ordermind uses to read and
// mutate domain records (orders, customers, products). Storage lives
// elsewhere; see internal/store for the sqlite implementation.
package records

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Well-known tables.
const (
	TableOrders    = "orders"
	TableCustomers = "customers"
	TableProducts  = "products"
)

// Order statuses used by the remittance workflow.
const (
	StatusShipped   = "shipped"
	StatusDelivered = "delivered"
	StatusRemitted  = "remitted"
)

var (
	ErrUnknownTable = errors.New("unknown table")
	ErrNotFound     = errors.New("record not found")
)

// Record is one stored row. It always carries "id", "created_at" and
// "updated_at"; the rest is table specific.
type Record map[string]any

func (r Record) ID() string {
	id, _ := r["id"].(string)
	return id
}

func (r Record) String(key string) string {
	switch v := r[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func (r Record) Float(key string) float64 {
	switch v := r[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// Time parses an RFC3339 timestamp field. Missing or malformed values
// yield the zero time.
func (r Record) Time(key string) time.Time {
	switch v := r[key].(type) {
	case time.Time:
		return v
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err == nil {
			return t
		}
	}
	return time.Time{}
}

// Filter narrows a query. Equals compares the string form of fields;
// IDs restricts to an explicit id set; Since and Until bound the RFC3339
// field named by TimeField, inclusively.
type Filter struct {
	Equals    map[string]string
	IDs       []string
	TimeField string
	Since     time.Time
	Until     time.Time
	Limit     int
}

// Match reports whether rec satisfies f.
func (f Filter) Match(rec Record) bool {
	if len(f.IDs) > 0 {
		found := false
		for _, id := range f.IDs {
			if id == rec.ID() {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for k, want := range f.Equals {
		if !strings.EqualFold(rec.String(k), want) {
			return false
		}
	}
	if f.TimeField != "" && (!f.Since.IsZero() || !f.Until.IsZero()) {
		t := rec.Time(f.TimeField)
		if t.IsZero() {
			return false
		}
		if !f.Since.IsZero() && t.Before(f.Since) {
			return false
		}
		if !f.Until.IsZero() && t.After(f.Until) {
			return false
		}
	}
	return true
}

// Store is the record collaborator consumed by tools and the workflow engine.
type Store interface {
	Query(ctx context.Context, table string, filter Filter) ([]Record, error)
	Get(ctx context.Context, table, id string) (Record, error)
	Create(ctx context.Context, table string, values map[string]any) (Record, error)
	Update(ctx context.Context, table, id string, values map[string]any) (Record, error)
	// BulkUpdate applies values to every record in ids that also matches
	// where, and returns the number of records changed.
	BulkUpdate(ctx context.Context, table string, ids []string, values map[string]any, where Filter) (int, error)
}

// KnownTable reports whether name is one of the well-known tables.
func KnownTable(name string) bool {
	switch name {
	case TableOrders, TableCustomers, TableProducts:
		return true
	}
	return false
}

// TableFromModel derives the table name for a model name:
// "OrderItem" -> "order_items", "Customer" -> "customers".
func TableFromModel(model string) string {
	var b strings.Builder
	runes := []rune(strings.TrimSpace(model))
	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			if i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		case r == ' ' || r == '-' || r == '.':
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	name := b.String()
	if name == "" {
		return ""
	}
	return pluralize(name)
}

// ModelFromTable is the inverse of TableFromModel:
// "order_items" -> "OrderItem".
func ModelFromTable(table string) string {
	parts := strings.FieldsFunc(strings.TrimSpace(table), func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
	if len(parts) == 0 {
		return ""
	}
	parts[len(parts)-1] = singularize(parts[len(parts)-1])
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		r := []rune(strings.ToLower(p))
		r[0] = unicode.ToUpper(r[0])
		b.WriteString(string(r))
	}
	return b.String()
}

func pluralize(s string) string {
	switch {
	case strings.HasSuffix(s, "s"):
		return s
	case strings.HasSuffix(s, "y") && len(s) > 1 && !strings.ContainsRune("aeiou", rune(s[len(s)-2])):
		return s[:len(s)-1] + "ies"
	default:
		return s + "s"
	}
}

func singularize(s string) string {
	switch {
	case strings.HasSuffix(s, "ies") && len(s) > 3:
		return s[:len(s)-3] + "y"
	case strings.HasSuffix(s, "s") && !strings.HasSuffix(s, "ss"):
		return s[:len(s)-1]
	default:
		return s
	}
}

var columns = map[string][]string{
	TableOrders: {
		"customer_id", "sku", "courier", "quantity", "amount", "status",
		"payment_mode", "phone", "tracking_url", "delivered_at", "remitted_at", "remittance_task_id",
	},
	TableCustomers: {"name", "phone", "email", "city"},
	TableProducts:  {"sku", "name", "price"},
}

// Columns lists the writable fields of a well-known table.
func Columns(table string) []string {
	return append([]string(nil), columns[table]...)
}

// UnknownColumns returns the keys of values that table does not define.
func UnknownColumns(table string, values map[string]any) []string {
	known := make(map[string]bool)
	for _, c := range columns[table] {
		known[c] = true
	}
	var out []string
	for k := range values {
		if k == "id" || known[k] {
			continue
		}
		out = append(out, k)
	}
	return out
}
