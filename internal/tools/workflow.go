package tools

import (
	"context"
	"errors"

	"github.com/rahul/ordermind/internal/workflow"
)

// WorkflowEngine is the remittance workflow surface the tools drive.
type WorkflowEngine interface {
	Create(ctx context.Context, owner string, items []workflow.LineItem) (*workflow.Task, error)
	Get(ctx context.Context, id string) (*workflow.Task, error)
	Confirm(ctx context.Context, id string, expected workflow.Step) (*workflow.Task, error)
}

func taskResult(task *workflow.Task) Result {
	res := Result(task.Summary())
	res["type"] = "workflow_task"
	return res
}

func workflowFailure(err error) (Result, error) {
	switch {
	case errors.Is(err, workflow.ErrNotFound):
		return ErrorResult(err.Error(), map[string]any{"code": "not_found"}), nil
	case errors.Is(err, workflow.ErrStepMismatch):
		return ErrorResult(err.Error(), map[string]any{"code": "step_mismatch"}), nil
	case errors.Is(err, workflow.ErrInvalidInput):
		return ErrorResult(err.Error(), map[string]any{"code": "invalid_input"}), nil
	}
	return nil, err
}

// CreateRemittanceTaskTool starts a delivery + remittance confirmation task.
type CreateRemittanceTaskTool struct {
	Engine WorkflowEngine
}

func (t *CreateRemittanceTaskTool) Describe() Descriptor {
	return Descriptor{
		Name: "create_remittance_task",
		Description: "Start a two-step bulk workflow for shipped orders: snapshot the orders matching each line item, " +
			"then wait for the user to confirm delivery and later remittance.",
		Risk: RiskMedium,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"line_items": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"sku":     map[string]any{"type": "string"},
							"courier": map[string]any{"type": "string"},
						},
						"required": []string{"sku"},
					},
				},
			},
			"required": []string{"line_items"},
		},
	}
}

func (t *CreateRemittanceTaskTool) Invoke(ctx context.Context, args map[string]any) (Result, error) {
	raw, ok := args["line_items"].([]any)
	if !ok || len(raw) == 0 {
		return Errorf("line_items must be a non-empty array"), nil
	}
	items := make([]workflow.LineItem, 0, len(raw))
	for i, v := range raw {
		m, ok := v.(map[string]any)
		if !ok {
			return Errorf("line_items[%d] must be an object", i), nil
		}
		items = append(items, workflow.LineItem{
			SKU:     stringArg(m, "sku"),
			Courier: stringArg(m, "courier"),
		})
	}

	task, err := t.Engine.Create(ctx, CallerFrom(ctx), items)
	if err != nil {
		return workflowFailure(err)
	}
	return taskResult(task), nil
}

// GetRemittanceTaskTool reads a workflow task.
type GetRemittanceTaskTool struct {
	Engine WorkflowEngine
}

func (t *GetRemittanceTaskTool) Describe() Descriptor {
	return Descriptor{
		Name:        "get_remittance_task",
		Description: "Show the current state, logs and report links of a remittance workflow task.",
		Risk:        RiskLow,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"task_id": map[string]any{"type": "string"},
			},
			"required": []string{"task_id"},
		},
	}
}

func (t *GetRemittanceTaskTool) Invoke(ctx context.Context, args map[string]any) (Result, error) {
	id := stringArg(args, "task_id")
	if id == "" {
		return Errorf("task_id is required"), nil
	}
	task, err := t.Engine.Get(ctx, id)
	if err != nil {
		return workflowFailure(err)
	}
	return taskResult(task), nil
}

// ConfirmRemittanceTaskTool advances a workflow task by one step.
type ConfirmRemittanceTaskTool struct {
	Engine WorkflowEngine
}

func (t *ConfirmRemittanceTaskTool) Describe() Descriptor {
	return Descriptor{
		Name: "confirm_remittance_task",
		Description: "Apply the next step of a remittance task (confirm_delivery, then confirm_remitted). " +
			"Irreversible bulk update; requires confirmed=true after explicit user approval.",
		Risk: RiskCritical,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"task_id":       map[string]any{"type": "string"},
				"expected_step": map[string]any{"type": "string", "enum": []string{string(workflow.StepConfirmDelivery), string(workflow.StepConfirmRemitted)}},
				"confirmed":     map[string]any{"type": "boolean"},
			},
			"required": []string{"task_id", "confirmed"},
		},
	}
}

func (t *ConfirmRemittanceTaskTool) Invoke(ctx context.Context, args map[string]any) (Result, error) {
	id := stringArg(args, "task_id")
	if id == "" {
		return Errorf("task_id is required"), nil
	}
	step, ok := workflow.ParseStep(stringArg(args, "expected_step"))
	if !ok {
		return Errorf("unknown expected_step %q", stringArg(args, "expected_step")), nil
	}
	task, err := t.Engine.Confirm(ctx, id, step)
	if err != nil {
		return workflowFailure(err)
	}
	return taskResult(task), nil
}
