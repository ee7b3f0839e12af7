package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rahul/ordermind/internal/records"
)

// ReportWriter renders the records of one line item and returns a link.
type ReportWriter interface {
	WriteOrders(ctx context.Context, name string, recs []records.Record) (string, error)
}

// Engine drives the confirm_delivery -> confirm_remitted -> completed
// state machine over tasks persisted in a DocumentStore.
type Engine struct {
	docs    DocumentStore
	records records.Store
	reports ReportWriter
	now     func() time.Time
	newID   func() string

	// OnEvent, when set, observes every logged transition after it is saved.
	OnEvent func(taskID, event string, affected int)

	// Lease bounds how long a confirmation may hold a task. A claim older
	// than Lease was abandoned (crash or failed save) and can be taken over;
	// both step mutations are safe to re-apply to the snapshot.
	Lease time.Duration
}

// DefaultLease is the claim lease of a new Engine.
const DefaultLease = 5 * time.Minute

// saveAttempts bounds the retries of the write that commits a step.
const saveAttempts = 3

func NewEngine(docs DocumentStore, recs records.Store, reports ReportWriter) *Engine {
	return &Engine{
		docs:    docs,
		records: recs,
		reports: reports,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
		Lease:   DefaultLease,
	}
}

// Create snapshots the shipped orders matching each line item and persists
// a task waiting for delivery confirmation.
func (e *Engine) Create(ctx context.Context, owner string, items []LineItem) (*Task, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: at least one line item is required", ErrInvalidInput)
	}

	now := e.now()
	task := &Task{
		ID:          e.newID(),
		Owner:       owner,
		Status:      StatusWaiting,
		CurrentStep: StepConfirmDelivery,
		CreatedAt:   now,
		UpdatedAt:   now,
		ReportLinks: []string{},
	}

	seen := make(map[string]bool)
	for _, item := range items {
		item.SKU = strings.TrimSpace(item.SKU)
		item.Courier = strings.TrimSpace(item.Courier)
		if item.SKU == "" {
			return nil, fmt.Errorf("%w: line item without sku", ErrInvalidInput)
		}
		filter := records.Filter{Equals: map[string]string{
			"status": records.StatusShipped,
			"sku":    item.SKU,
		}}
		if item.Courier != "" {
			filter.Equals["courier"] = item.Courier
		}
		recs, err := e.records.Query(ctx, records.TableOrders, filter)
		if err != nil {
			return nil, fmt.Errorf("failed to snapshot orders for %s: %w", item.SKU, err)
		}

		item.RecordIDs = make([]string, 0, len(recs))
		for _, rec := range recs {
			id := rec.ID()
			item.RecordIDs = append(item.RecordIDs, id)
			if !seen[id] {
				seen[id] = true
				task.MatchedRecordIDs = append(task.MatchedRecordIDs, id)
			}
		}
		task.LineItems = append(task.LineItems, item)
	}
	if task.MatchedRecordIDs == nil {
		task.MatchedRecordIDs = []string{}
	}
	task.appendLog(now, "task_created", task.MatchedCount(), nil)

	if err := e.save(ctx, task); err != nil {
		return nil, err
	}
	log.Printf("[workflow] task %s created for %s: %d orders matched", task.ID, owner, task.MatchedCount())
	e.observe(task)
	return task, nil
}

// Get loads a task by id.
func (e *Engine) Get(ctx context.Context, id string) (*Task, error) {
	doc, err := e.docs.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	return decode(doc)
}

// Pending lists tasks waiting for a confirmation, oldest first.
func (e *Engine) Pending(ctx context.Context) ([]*Task, error) {
	docs, err := e.docs.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []*Task
	for _, doc := range docs {
		task, err := decode(doc)
		if err != nil {
			log.Printf("[workflow] skipping unreadable task %s: %v", doc.ID, err)
			continue
		}
		if task.Status == StatusWaiting || e.claimExpired(task) {
			out = append(out, task)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Confirm advances the task by one step. expected, when non-empty, must
// equal the task's current step. Confirming a completed task returns it
// unchanged.
func (e *Engine) Confirm(ctx context.Context, id string, expected Step) (*Task, error) {
	task, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if expected != "" && expected != task.CurrentStep {
		return nil, fmt.Errorf("%w: task %s is at %s, not %s", ErrStepMismatch, id, task.CurrentStep, expected)
	}
	switch task.Status {
	case StatusCompleted:
		return task, nil
	case StatusProcessing:
		if !e.claimExpired(task) {
			return nil, fmt.Errorf("%w: task %s is already being confirmed", ErrStepMismatch, id)
		}
		log.Printf("[workflow] task %s: taking over an expired claim", id)
	}

	// Claim the task so a concurrent confirmation cannot apply the same
	// mutation twice.
	now := e.now()
	task.Status = StatusProcessing
	task.ClaimedAt = &now
	task.UpdatedAt = now
	if err := e.save(ctx, task); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return nil, fmt.Errorf("%w: task %s was confirmed concurrently", ErrStepMismatch, id)
		}
		return nil, err
	}

	switch task.CurrentStep {
	case StepConfirmDelivery:
		err = e.confirmDelivery(ctx, task)
	case StepConfirmRemitted:
		err = e.confirmRemitted(ctx, task)
	default:
		err = fmt.Errorf("task %s has unknown step %q", id, task.CurrentStep)
	}
	if err != nil {
		return nil, e.release(ctx, task, err)
	}

	task.ClaimedAt = nil
	if err := e.commit(ctx, task); err != nil {
		return nil, err
	}
	log.Printf("[workflow] task %s advanced to %s", task.ID, task.CurrentStep)
	e.observe(task)
	return task, nil
}

func (e *Engine) confirmDelivery(ctx context.Context, task *Task) error {
	now := e.now()
	n, err := e.records.BulkUpdate(ctx, records.TableOrders, task.MatchedRecordIDs, map[string]any{
		"status":             records.StatusDelivered,
		"delivered_at":       now.Format(time.RFC3339Nano),
		"remittance_task_id": task.ID,
	}, records.Filter{})
	if err != nil {
		return fmt.Errorf("failed to mark orders delivered: %w", err)
	}

	task.appendLog(now, "delivery_confirmed", n, nil)
	task.DeliveryConfirmedAt = &now
	task.CurrentStep = StepConfirmRemitted
	task.Status = StatusWaiting
	task.UpdatedAt = now
	return nil
}

func (e *Engine) confirmRemitted(ctx context.Context, task *Task) error {
	if task.DeliveryConfirmedAt == nil {
		return fmt.Errorf("task %s has no delivery confirmation time", task.ID)
	}
	now := e.now()
	// Only orders still carrying this task's delivery mark are remitted.
	fresh := records.Filter{
		Equals: map[string]string{
			"status":             records.StatusDelivered,
			"remittance_task_id": task.ID,
		},
		TimeField: "delivered_at",
		Since:     *task.DeliveryConfirmedAt,
	}
	n, err := e.records.BulkUpdate(ctx, records.TableOrders, task.MatchedRecordIDs, map[string]any{
		"status":      records.StatusRemitted,
		"remitted_at": now.Format(time.RFC3339Nano),
	}, fresh)
	if err != nil {
		return fmt.Errorf("failed to mark orders remitted: %w", err)
	}

	links := make([]string, 0, len(task.LineItems))
	for _, item := range task.LineItems {
		if e.reports == nil {
			break
		}
		var recs []records.Record
		if len(item.RecordIDs) > 0 {
			recs, err = e.records.Query(ctx, records.TableOrders, records.Filter{
				IDs:    item.RecordIDs,
				Equals: map[string]string{"status": records.StatusRemitted},
			})
			if err != nil {
				return fmt.Errorf("failed to load remitted orders for %s: %w", item.SKU, err)
			}
		}
		name := strings.TrimSpace(fmt.Sprintf("remittance %s %s %s", task.ID[:min(8, len(task.ID))], item.SKU, item.Courier))
		link, err := e.reports.WriteOrders(ctx, name, recs)
		if err != nil {
			return fmt.Errorf("failed to write report for %s: %w", item.SKU, err)
		}
		links = append(links, link)
	}

	task.appendLog(now, "remittance_confirmed", n, nil)
	task.ReportLinks = links
	task.CurrentStep = StepCompleted
	task.Status = StatusCompleted
	task.UpdatedAt = now
	return nil
}

// release puts a claimed task back to waiting after a failed transition
// and returns cause.
func (e *Engine) release(ctx context.Context, task *Task, cause error) error {
	now := e.now()
	task.appendLog(now, "confirmation_failed", 0, cause)
	task.Status = StatusWaiting
	task.ClaimedAt = nil
	task.UpdatedAt = now
	if err := e.save(ctx, task); err != nil {
		log.Printf("[workflow] failed to release task %s: %v", task.ID, err)
	} else {
		e.observe(task)
	}
	return cause
}

// commit writes the advanced state of a claimed task. Failed writes are
// retried while the stored document still holds this engine's claim.
func (e *Engine) commit(ctx context.Context, task *Task) error {
	claimed := task.Version
	var err error
	for attempt := 1; attempt <= saveAttempts; attempt++ {
		if err = e.save(ctx, task); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			break
		}
		log.Printf("[workflow] task %s: commit attempt %d failed: %v", task.ID, attempt, err)
		doc, gerr := e.docs.Get(ctx, task.ID)
		if gerr != nil {
			continue
		}
		if doc.Version != claimed {
			return fmt.Errorf("%w: task %s lost its claim before commit", ErrStepMismatch, task.ID)
		}
	}
	return err
}

func (e *Engine) claimExpired(task *Task) bool {
	if task.Status != StatusProcessing {
		return false
	}
	if task.ClaimedAt == nil {
		// Claims written without a timestamp fall back to the last update.
		return e.Lease > 0 && e.now().Sub(task.UpdatedAt) >= e.Lease
	}
	return e.Lease > 0 && e.now().Sub(*task.ClaimedAt) >= e.Lease
}

func (e *Engine) observe(task *Task) {
	if e.OnEvent == nil || len(task.Logs) == 0 {
		return
	}
	last := task.Logs[len(task.Logs)-1]
	e.OnEvent(task.ID, last.Event, last.Affected)
}

func (e *Engine) save(ctx context.Context, task *Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode task %s: %w", task.ID, err)
	}
	v, err := e.docs.Put(ctx, task.ID, data, task.Version)
	if err != nil {
		return fmt.Errorf("failed to save task %s: %w", task.ID, err)
	}
	task.Version = v
	return nil
}

func decode(doc Document) (*Task, error) {
	var task Task
	if err := json.Unmarshal(doc.Data, &task); err != nil {
		return nil, fmt.Errorf("failed to decode task %s: %w", doc.ID, err)
	}
	task.Version = doc.Version
	return &task, nil
}
