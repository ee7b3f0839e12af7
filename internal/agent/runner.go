package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"

	"github.com/rahul/ordermind/internal/governance"
	"github.com/rahul/ordermind/internal/observability"
	"github.com/rahul/ordermind/internal/tools"
	"github.com/rahul/ordermind/pkg/config"
)

// EventType names the events streamed to the caller of Run.
type EventType string

const (
	EventStatus       EventType = "status"
	EventPlan         EventType = "plan"
	EventDelta        EventType = "delta"
	EventToolCall     EventType = "tool_call"
	EventToolResult   EventType = "tool_result"
	EventCritic       EventType = "critic"
	EventContextUsage EventType = "context_usage"
	EventDone         EventType = "done"
	EventError        EventType = "error"
)

// Event is one streamed item; Data is JSON serializable.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data,omitempty"`
}

// EmitFunc receives events in production order. It is called from the
// goroutine running Run.
type EmitFunc func(Event)

// Error kinds carried by error events.
const (
	ErrorKindTransport    = "transport"
	ErrorKindIterationCap = "iteration_cap"
	ErrorKindCancelled    = "cancelled"
)

// ErrIterationCapExceeded means the model never converged on an answer.
var ErrIterationCapExceeded = errors.New("iteration cap exceeded")

// TransportError wraps a failed model backend call.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("model backend: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Usage is the token consumption reported by the model backend.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// RunResult is what a run produced, including partial text when it was
// aborted.
type RunResult struct {
	Text       string `json:"text"`
	Turns      []Turn `json:"turns"` // turns appended by this run
	Plan       Plan   `json:"plan"`
	Iterations int    `json:"iterations"`
	Usage      Usage  `json:"usage"`
}

// Runner is the conversation loop controller.
type Runner struct {
	Model        llms.Model
	ModelName    string
	Registry     *tools.Registry
	Gate         *governance.Gate
	Orchestrator *Orchestrator
	Critic       *Critic
	Planner      *Planner
	Policy       config.Policy
	Logger       *observability.Logger

	// DeltaSize is the maximum fragment length of streamed final text.
	DeltaSize int
}

func NewRunner(model llms.Model, registry *tools.Registry, gate *governance.Gate, orch *Orchestrator,
	critic *Critic, planner *Planner, policy config.Policy, logger *observability.Logger) *Runner {
	return &Runner{
		Model:        model,
		Registry:     registry,
		Gate:         gate,
		Orchestrator: orch,
		Critic:       critic,
		Planner:      planner,
		Policy:       policy,
		Logger:       logger,
		DeltaSize:    48,
	}
}

type run struct {
	*Runner
	ctx    context.Context
	chatID string
	emit   EmitFunc
	turns  []Turn
	res    *RunResult
}

// Run drives the loop until a final answer, a transport failure, the
// iteration cap, or cancellation of ctx. The conversation identifier for
// logs and tool attribution is taken from tools.CallerFrom(ctx).
func (r *Runner) Run(ctx context.Context, messages []Turn, emit EmitFunc) (*RunResult, error) {
	if emit == nil {
		emit = func(Event) {}
	}
	observability.BeginRun()
	defer observability.EndRun()

	x := &run{
		Runner: r,
		ctx:    ctx,
		chatID: tools.CallerFrom(ctx),
		emit:   emit,
		res:    &RunResult{Turns: []Turn{}},
	}
	if r.Policy.SystemPrompt != "" && (len(messages) == 0 || messages[0].Role != RoleSystem) {
		x.turns = append(x.turns, Turn{Role: RoleSystem, Content: r.Policy.SystemPrompt})
	}
	x.turns = append(x.turns, messages...)

	catalog := r.Registry.Catalog()
	x.res.Plan = r.Planner.Build(ctx, x.turns, catalog)
	emit(Event{Type: EventPlan, Data: x.res.Plan})
	r.Logger.LogPlan(x.chatID, x.res.Plan)

	err := x.loop(toLLMTools(catalog))
	if err != nil {
		observability.SetStatus(observability.StateErrored, err.Error())
	} else {
		observability.SetStatus(observability.StateDone, "")
	}
	return x.res, err
}

func (x *run) loop(llmTools []llms.Tool) error {
	maxIterations := x.Policy.MaxIterations
	if maxIterations <= 0 {
		maxIterations = 8
	}

	for iter := 1; iter <= maxIterations; iter++ {
		if err := x.ctx.Err(); err != nil {
			return x.cancelled(err)
		}
		x.res.Iterations = iter
		x.status(observability.StateAwaitingModel, fmt.Sprintf("iteration %d", iter))

		choice, err := x.callModel(llmTools)
		if err != nil {
			if ctxErr := x.ctx.Err(); ctxErr != nil {
				return x.cancelled(ctxErr)
			}
			return x.fail(ErrorKindTransport, &TransportError{Err: err})
		}

		calls := toolCallsFromChoice(choice)
		if len(calls) == 0 {
			return x.stream(choice.Content)
		}
		if iter == maxIterations {
			// These calls would never be seen by the model again.
			break
		}

		x.append(Turn{Role: RoleAssistant, Content: choice.Content, ToolCalls: calls})
		x.status(observability.StateExecutingTools, fmt.Sprintf("%d tool call(s)", len(calls)))
		for i, call := range calls {
			if err := x.ctx.Err(); err != nil {
				// Every call of the assistant turn needs a reply before the
				// history can be replayed to the model.
				for _, skipped := range calls[i:] {
					res := tools.ErrorResult("cancelled before execution", map[string]any{"cancelled": true})
					x.append(Turn{Role: RoleTool, Content: res.JSON(), ToolCallID: skipped.ID, Name: skipped.Name})
				}
				return x.cancelled(err)
			}
			res := x.executeCall(call)
			x.append(Turn{Role: RoleTool, Content: res.JSON(), ToolCallID: call.ID, Name: call.Name})
		}
	}

	return x.fail(ErrorKindIterationCap, fmt.Errorf("%w: no final answer after %d model calls", ErrIterationCapExceeded, maxIterations))
}

func (x *run) callModel(llmTools []llms.Tool) (*llms.ContentChoice, error) {
	ctx := x.ctx
	if x.Policy.ModelTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, x.Policy.ModelTimeout)
		defer cancel()
	}

	messages := toMessages(x.turns)
	var opts []llms.CallOption
	if len(llmTools) > 0 {
		opts = append(opts, llms.WithTools(llmTools))
	}
	resp, err := x.Model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return nil, errors.New("response has no choices")
	}
	choice := resp.Choices[0]

	usage := Usage{
		PromptTokens:     intInfo(choice.GenerationInfo, "PromptTokens"),
		CompletionTokens: intInfo(choice.GenerationInfo, "CompletionTokens"),
	}
	x.res.Usage.PromptTokens += usage.PromptTokens
	x.res.Usage.CompletionTokens += usage.CompletionTokens
	x.emit(Event{Type: EventContextUsage, Data: map[string]any{
		"prompt_tokens":     usage.PromptTokens,
		"completion_tokens": usage.CompletionTokens,
		"window":            x.Policy.ContextWindow,
		"used_ratio":        usedRatio(usage.PromptTokens+usage.CompletionTokens, x.Policy.ContextWindow),
	}})
	x.Logger.LogContextUsage(x.chatID, usage.PromptTokens, usage.CompletionTokens, x.Policy.ContextWindow, x.ModelName)
	x.Logger.LogLLM(x.chatID, messages, choice.Content, choice.ToolCalls)
	return choice, nil
}

// executeCall runs resolve, authorize, orchestrate and critique for one
// call. Failures are returned as error results for the model to read.
func (x *run) executeCall(call ToolCall) tools.Result {
	args, err := call.ParseArguments()
	x.emit(Event{Type: EventToolCall, Data: map[string]any{
		"id":        call.ID,
		"name":      call.Name,
		"arguments": argsOrRaw(args, call.Arguments),
	}})
	x.Logger.LogToolCall(x.chatID, call.Name, args)

	res := x.resolveAndRun(call, args, err)

	verdict := x.Critic.Evaluate(call.Name, res)
	x.emit(Event{Type: EventCritic, Data: map[string]any{"id": call.ID, "name": call.Name, "verdict": verdict}})
	x.Logger.LogCritic(x.chatID, call.Name, verdict)
	if len(verdict.Issues) > 0 && !res.IsError() {
		res = res.Clone()
		res["critic"] = verdict
	}

	attempts := 0
	if exec, ok := res["execution"].(map[string]any); ok {
		attempts, _ = exec["attempts"].(int)
	}
	x.emit(Event{Type: EventToolResult, Data: map[string]any{"id": call.ID, "name": call.Name, "result": res}})
	x.Logger.LogToolResult(x.chatID, call.Name, res.Type(), attempts)
	return res
}

func (x *run) resolveAndRun(call ToolCall, args map[string]any, parseErr error) tools.Result {
	if parseErr != nil {
		return tools.Errorf("%v", parseErr)
	}
	desc, ok := x.Registry.Resolve(call.Name)
	if !ok {
		names := []string{}
		for _, d := range x.Registry.Catalog() {
			names = append(names, exposedName(d.Name))
		}
		return tools.ErrorResult(fmt.Sprintf("unknown tool %q", call.Name), map[string]any{"available_tools": names})
	}

	decision := x.Gate.Authorize(desc.Name, args)
	x.Logger.LogPolicyCheck(x.chatID, desc.Name, decision.Allowed, string(decision.Risk), decision.Reason)
	if !decision.Allowed {
		return tools.ErrorResult(decision.Reason, map[string]any{
			"policy_denied":         true,
			"risk_tier":             string(decision.Risk),
			"requires_confirmation": decision.RequiresConfirmation,
		})
	}

	// The caller may go away; a started call still runs to completion
	// under its own timeout.
	toolCtx := context.WithoutCancel(x.ctx)
	return x.Orchestrator.Execute(toolCtx, desc.Name, args, x.Registry.Invoke)
}

// stream emits the final answer as delta fragments. Cancellation between
// fragments keeps what was already sent.
func (x *run) stream(text string) error {
	x.status(observability.StateStreaming, "")
	sent := ""
	for _, frag := range fragments(text, x.DeltaSize) {
		if err := x.ctx.Err(); err != nil {
			x.res.Text = sent
			if sent != "" {
				x.append(Turn{Role: RoleAssistant, Content: sent})
			}
			return x.cancelled(err)
		}
		x.emit(Event{Type: EventDelta, Data: map[string]any{"text": frag}})
		sent += frag
	}
	x.res.Text = text
	x.append(Turn{Role: RoleAssistant, Content: text})
	x.emit(Event{Type: EventDone, Data: map[string]any{
		"iterations": x.res.Iterations,
		"usage":      x.res.Usage,
	}})
	return nil
}

func (x *run) append(t Turn) {
	x.turns = append(x.turns, t)
	x.res.Turns = append(x.res.Turns, t)
}

func (x *run) status(state observability.State, detail string) {
	observability.SetStatus(state, detail)
	x.emit(Event{Type: EventStatus, Data: map[string]any{"state": state, "detail": detail}})
}

func (x *run) fail(kind string, err error) error {
	x.emit(Event{Type: EventError, Data: map[string]any{"kind": kind, "message": err.Error()}})
	return err
}

func (x *run) cancelled(err error) error {
	return x.fail(ErrorKindCancelled, fmt.Errorf("run cancelled: %w", err))
}

func toLLMTools(catalog []tools.Descriptor) []llms.Tool {
	out := make([]llms.Tool, 0, len(catalog))
	for _, d := range catalog {
		params := d.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        exposedName(d.Name),
				Description: fmt.Sprintf("%s (risk: %s)", d.Description, d.Risk),
				Parameters:  params,
			},
		})
	}
	return out
}

// fragments splits text into pieces of at most size bytes, preferring to
// cut after whitespace and never inside a UTF-8 sequence.
func fragments(text string, size int) []string {
	if size <= 0 {
		size = 48
	}
	var out []string
	runes := []rune(text)
	start := 0
	for start < len(runes) {
		end := start
		n := 0
		cut := -1
		for end < len(runes) && n+len(string(runes[end])) <= size {
			n += len(string(runes[end]))
			if runes[end] == ' ' || runes[end] == '\n' {
				cut = end + 1
			}
			end++
		}
		if end == start {
			end = start + 1
		} else if end < len(runes) && cut > start {
			end = cut
		}
		out = append(out, string(runes[start:end]))
		start = end
	}
	return out
}

func intInfo(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func usedRatio(used, window int) float64 {
	if window <= 0 {
		return 0
	}
	return float64(used) / float64(window)
}

func argsOrRaw(args map[string]any, raw string) any {
	if args != nil {
		return args
	}
	return raw
}
