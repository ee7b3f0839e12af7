package agent

import (
	"sort"
	"strings"
	"unicode"

	"github.com/rahul/ordermind/internal/records"
	"github.com/rahul/ordermind/internal/tools"
)

// RegisterDefaultRepairs installs the argument repairs for the built-in
// tools:
//
//   - send_whatsapp: phone normalized to +<country code><digits>.
//   - list_records, sales_report, export_spreadsheet: the first retry
//     normalizes filter values, later retries drop the narrowest filter.
//   - create_record, update_record, list_records: unknown tables are
//     derived from model names, <x> fields become <x>_id foreign keys.
func RegisterDefaultRepairs(o *Orchestrator, countryCode string) {
	o.RegisterRepair("send_whatsapp", PhoneRepair(countryCode))

	o.RegisterRepair("list_records", TableRepair)
	o.RegisterRepair("list_records", ForeignKeyRepair)
	for _, name := range []string{"list_records", "sales_report", "export_spreadsheet"} {
		o.RegisterRepair(name, FilterRepair)
	}
	for _, name := range []string{"create_record", "update_record"} {
		o.RegisterRepair(name, TableRepair)
		o.RegisterRepair(name, ForeignKeyRepair)
	}
}

// NormalizePhone rewrites a loosely formatted number as +<cc><digits>.
func NormalizePhone(raw, countryCode string) string {
	raw = strings.TrimSpace(raw)
	var digits strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	cc := strings.TrimPrefix(strings.TrimSpace(countryCode), "+")
	switch {
	case d == "":
		return raw
	case strings.HasPrefix(raw, "+"):
		return "+" + d
	case strings.HasPrefix(d, "00"):
		return "+" + d[2:]
	case cc != "" && strings.HasPrefix(d, cc) && len(d) > 10:
		return "+" + d
	}
	d = strings.TrimLeft(d, "0")
	return "+" + cc + d
}

// PhoneRepair normalizes the phone argument.
func PhoneRepair(countryCode string) RepairFunc {
	return func(attempt int, args map[string]any, failure tools.Result) bool {
		raw, ok := args["phone"].(string)
		if !ok {
			return false
		}
		fixed := NormalizePhone(raw, countryCode)
		if fixed == raw {
			return false
		}
		args["phone"] = fixed
		return true
	}
}

// Optional filters in the order they are dropped, narrowest first. Date
// bounds define what is being asked for and are never dropped.
var droppableFilters = []string{"customer_id", "sku", "courier", "status"}

// FilterRepair normalizes filter values on the first retry and drops the
// narrowest remaining optional filter on later ones.
func FilterRepair(attempt int, args map[string]any, failure tools.Result) bool {
	if attempt == 1 && normalizeFilters(args) {
		return true
	}
	return dropNarrowestFilter(args)
}

func normalizeFilters(args map[string]any) bool {
	changed := false
	set := func(m map[string]any, key, value string) {
		if m[key] != value {
			m[key] = value
			changed = true
		}
	}
	for _, key := range droppableFilters {
		if s, ok := args[key].(string); ok {
			v := strings.TrimSpace(s)
			if key == "status" {
				v = strings.ToLower(v)
			}
			set(args, key, v)
		}
	}
	for _, key := range []string{"date_from", "date_to"} {
		if s, ok := args[key].(string); ok {
			if d, ok := tools.NormalizeDate(s); ok {
				set(args, key, d)
			}
		}
	}
	if nested, ok := args["filters"].(map[string]any); ok {
		for k, v := range nested {
			if s, ok := v.(string); ok {
				val := strings.TrimSpace(s)
				if k == "status" {
					val = strings.ToLower(val)
				}
				set(nested, k, val)
			}
		}
	}
	return changed
}

func dropNarrowestFilter(args map[string]any) bool {
	if nested, ok := args["filters"].(map[string]any); ok && len(nested) > 0 {
		keys := make([]string, 0, len(nested))
		for k := range nested {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		delete(nested, keys[0])
		if len(nested) == 0 {
			delete(args, "filters")
		}
		return true
	}
	for _, key := range droppableFilters {
		if v, ok := args[key]; ok && v != "" && v != nil {
			delete(args, key)
			return true
		}
	}
	return false
}

// TableRepair maps an unknown table or model name onto a known table.
func TableRepair(attempt int, args map[string]any, failure tools.Result) bool {
	name, _ := args["table"].(string)
	if name == "" {
		name, _ = args["model"].(string)
	}
	if name == "" || records.KnownTable(name) {
		return false
	}
	candidates := []string{
		records.TableFromModel(name),
		records.TableFromModel(records.ModelFromTable(strings.ToLower(name))),
		strings.ToLower(strings.TrimSpace(name)),
	}
	for _, c := range candidates {
		if records.KnownTable(c) {
			args["table"] = c
			delete(args, "model")
			return true
		}
	}
	return false
}

// ForeignKeyRepair renames <x> to <x>_id in values and filters when the
// table defines the _id column.
func ForeignKeyRepair(attempt int, args map[string]any, failure tools.Result) bool {
	table, _ := args["table"].(string)
	if !records.KnownTable(table) {
		return false
	}
	cols := make(map[string]bool)
	for _, c := range records.Columns(table) {
		cols[c] = true
	}

	changed := false
	for _, key := range []string{"values", "filters"} {
		m, ok := args[key].(map[string]any)
		if !ok {
			continue
		}
		for field, v := range m {
			if cols[field] || !cols[field+"_id"] {
				continue
			}
			if _, taken := m[field+"_id"]; taken {
				continue
			}
			m[field+"_id"] = v
			delete(m, field)
			changed = true
		}
	}
	return changed
}
