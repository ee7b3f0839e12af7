// Package report renders order spreadsheets and hands out links to them.
package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/rahul/ordermind/internal/records"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Orders"

var orderColumns = []string{
	"id", "sku", "courier", "quantity", "amount", "status",
	"payment_mode", "delivered_at", "remitted_at", "created_at",
}

// Writer writes xlsx files into Dir and links them under BaseURL/reports/.
type Writer struct {
	Dir     string
	BaseURL string
	now     func() time.Time
}

func NewWriter(dir, baseURL string) *Writer {
	return &Writer{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/"), now: time.Now}
}

// WriteOrders renders recs to a new spreadsheet and returns its URL.
func (w *Writer) WriteOrders(ctx context.Context, name string, recs []records.Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(w.Dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return "", err
	}

	header := make([]any, len(orderColumns))
	for i, c := range orderColumns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return "", err
	}

	var total float64
	for i, rec := range recs {
		row := make([]any, len(orderColumns))
		for j, c := range orderColumns {
			switch c {
			case "amount", "quantity":
				row[j] = rec.Float(c)
			default:
				row[j] = rec.String(c)
			}
		}
		total += rec.Float("amount")
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return "", err
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return "", err
		}
	}

	totalRow := []any{"total", "", "", "", total}
	cell, err := excelize.CoordinatesToCellName(1, len(recs)+2)
	if err != nil {
		return "", err
	}
	if err := f.SetSheetRow(sheetName, cell, &totalRow); err != nil {
		return "", err
	}

	filename := fmt.Sprintf("%s-%s.xlsx", slug(name), w.now().UTC().Format("20060102T150405.000"))
	if err := f.SaveAs(filepath.Join(w.Dir, filename)); err != nil {
		return "", fmt.Errorf("failed to save report: %w", err)
	}
	return w.BaseURL + "/reports/" + filename, nil
}

func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
		} else if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimRight(b.String(), "-")
	if out == "" {
		return "report"
	}
	return out
}
