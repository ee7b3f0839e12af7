package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/rahul/ordermind/internal/tools"
)

// InvokeFunc is the tool invocation seam, normally Registry.Invoke.
type InvokeFunc func(ctx context.Context, name string, args map[string]any) tools.Result

// RepairFunc adjusts args in place after a failed attempt and reports
// whether it changed anything. args is always a private copy.
type RepairFunc func(attempt int, args map[string]any, failure tools.Result) bool

// Attempt is one entry of a call's execution history.
type Attempt struct {
	Number     int            `json:"attempt"`
	Arguments  map[string]any `json:"arguments"`
	ResultType string         `json:"result_type"`
	Message    string         `json:"message,omitempty"`
}

// Orchestrator runs one tool call with bounded retries, backoff and
// failure-driven argument repair.
type Orchestrator struct {
	MaxAttempts int
	Backoff     time.Duration
	CallTimeout time.Duration

	repairs map[string][]RepairFunc
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewOrchestrator(maxAttempts int, backoff, callTimeout time.Duration) *Orchestrator {
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	return &Orchestrator{
		MaxAttempts: maxAttempts,
		Backoff:     backoff,
		CallTimeout: callTimeout,
		repairs:     make(map[string][]RepairFunc),
		sleep:       sleepContext,
	}
}

// RegisterRepair appends a repair heuristic for tool. Heuristics run in
// registration order; the first one that changes the arguments wins.
func (o *Orchestrator) RegisterRepair(tool string, fn RepairFunc) {
	o.repairs[tool] = append(o.repairs[tool], fn)
}

// Execute invokes tool until it succeeds or the attempt budget is spent.
// A successful result carries an "execution" entry with the attempt count,
// whether a retry recovered it, and the attempt history.
func (o *Orchestrator) Execute(ctx context.Context, tool string, args map[string]any, invoke InvokeFunc) tools.Result {
	current := tools.CloneArgs(args)
	var history []Attempt
	var last tools.Result
	stoppedEarly := false

	for attempt := 1; attempt <= o.MaxAttempts; attempt++ {
		res := o.invokeOnce(ctx, tool, current, invoke)
		history = append(history, Attempt{
			Number:     attempt,
			Arguments:  tools.CloneArgs(current),
			ResultType: resultType(res),
			Message:    res.Message(),
		})

		if !res.IsError() {
			out := res.Clone()
			out["execution"] = map[string]any{
				"attempts":  attempt,
				"recovered": attempt > 1,
				"history":   history,
			}
			return out
		}
		last = res
		if attempt == o.MaxAttempts {
			break
		}

		next := tools.CloneArgs(current)
		if !o.repair(tool, attempt, next, res) && !transient(res) {
			// Identical arguments would fail the same way.
			stoppedEarly = true
			break
		}
		if err := o.sleep(ctx, o.Backoff*time.Duration(attempt)); err != nil {
			break
		}
		current = next
	}

	return tools.ErrorResult(
		fmt.Sprintf("%s failed after %d attempt(s), retries exhausted: %s", tool, len(history), last.Message()),
		map[string]any{
			"attempts":      len(history),
			"history":       history,
			"last_error":    map[string]any(last),
			"stopped_early": stoppedEarly,
		},
	)
}

func (o *Orchestrator) repair(tool string, attempt int, args map[string]any, failure tools.Result) bool {
	for _, fn := range o.repairs[tool] {
		if fn(attempt, args, failure) {
			return true
		}
	}
	return false
}

// invokeOnce applies the per-call timeout. A tool that ignores its context
// is left to finish in the background; its late result is discarded.
func (o *Orchestrator) invokeOnce(ctx context.Context, tool string, args map[string]any, invoke InvokeFunc) tools.Result {
	if o.CallTimeout <= 0 {
		return normalize(invoke(ctx, tool, args))
	}
	callCtx, cancel := context.WithTimeout(ctx, o.CallTimeout)
	defer cancel()

	done := make(chan tools.Result, 1)
	go func() {
		done <- invoke(callCtx, tool, tools.CloneArgs(args))
	}()

	select {
	case res := <-done:
		return normalize(res)
	case <-callCtx.Done():
		res := tools.Errorf("%s timed out after %s", tool, o.CallTimeout)
		res["retryable"] = true
		return res
	}
}

func normalize(res tools.Result) tools.Result {
	if res == nil {
		return tools.Errorf("tool returned no result")
	}
	return res
}

func resultType(res tools.Result) string {
	if res.Type() == "" {
		return "unknown"
	}
	return res.Type()
}

func transient(res tools.Result) bool {
	return res.Retryable()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
