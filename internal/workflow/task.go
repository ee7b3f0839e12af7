// Package workflow implements the human-confirmed remittance workflow: a
// durable two-step state machine that bulk-updates a fixed snapshot of
// orders, first marking them delivered and then remitted.
package workflow

import (
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("workflow task not found")
	ErrStepMismatch = errors.New("workflow step mismatch")
	ErrInvalidInput = errors.New("invalid workflow input")
)

type Status string

const (
	StatusWaiting    Status = "waiting_confirmation"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
)

type Step string

const (
	StepConfirmDelivery Step = "confirm_delivery"
	StepConfirmRemitted Step = "confirm_remitted"
	StepCompleted       Step = "completed"
)

// ParseStep accepts the step names used on the wire; "" means any step.
func ParseStep(s string) (Step, bool) {
	switch Step(s) {
	case "", StepConfirmDelivery, StepConfirmRemitted, StepCompleted:
		return Step(s), true
	}
	return "", false
}

// LineItem selects orders by SKU and, optionally, courier. RecordIDs is the
// snapshot taken when the task was created.
type LineItem struct {
	SKU       string   `json:"sku"`
	Courier   string   `json:"courier,omitempty"`
	RecordIDs []string `json:"record_ids"`
}

// LogEntry records one transition. Entries are only ever appended.
type LogEntry struct {
	At       time.Time `json:"at"`
	Step     Step      `json:"step"`
	Event    string    `json:"event"`
	Affected int       `json:"affected"`
	Error    string    `json:"error,omitempty"`
}

// Task is the persisted workflow document.
type Task struct {
	ID                  string     `json:"id"`
	Owner               string     `json:"owner"`
	Status              Status     `json:"status"`
	CurrentStep         Step       `json:"current_step"`
	LineItems           []LineItem `json:"line_items"`
	MatchedRecordIDs    []string   `json:"matched_record_ids"`
	Logs                []LogEntry `json:"logs"`
	ReportLinks         []string   `json:"report_links"`
	DeliveryConfirmedAt *time.Time `json:"delivery_confirmed_at,omitempty"`
	ClaimedAt           *time.Time `json:"claimed_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`

	// Version is the document store version the task was read at.
	Version int64 `json:"-"`
}

func (t *Task) MatchedCount() int {
	return len(t.MatchedRecordIDs)
}

// Summary is the compact form handed back to the model and HTTP callers.
func (t *Task) Summary() map[string]any {
	items := make([]map[string]any, 0, len(t.LineItems))
	for _, it := range t.LineItems {
		items = append(items, map[string]any{
			"sku":           it.SKU,
			"courier":       it.Courier,
			"matched_count": len(it.RecordIDs),
		})
	}
	logs := make([]map[string]any, 0, len(t.Logs))
	for _, l := range t.Logs {
		entry := map[string]any{
			"at":       l.At.Format(time.RFC3339),
			"step":     string(l.Step),
			"event":    l.Event,
			"affected": l.Affected,
		}
		if l.Error != "" {
			entry["error"] = l.Error
		}
		logs = append(logs, entry)
	}
	return map[string]any{
		"id":            t.ID,
		"owner":         t.Owner,
		"status":        string(t.Status),
		"current_step":  string(t.CurrentStep),
		"matched_count": t.MatchedCount(),
		"line_items":    items,
		"report_links":  append([]string{}, t.ReportLinks...),
		"logs":          logs,
		"created_at":    t.CreatedAt.Format(time.RFC3339),
		"updated_at":    t.UpdatedAt.Format(time.RFC3339),
	}
}

func (t *Task) appendLog(at time.Time, event string, affected int, err error) {
	entry := LogEntry{At: at, Step: t.CurrentStep, Event: event, Affected: affected}
	if err != nil {
		entry.Error = err.Error()
	}
	t.Logs = append(t.Logs, entry)
}
