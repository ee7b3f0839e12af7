package agent

import (
	"fmt"

	"github.com/rahul/ordermind/internal/tools"
)

type Severity string

const (
	SeverityLow  Severity = "low"
	SeverityHigh Severity = "high"
)

// Verdict is the critic's assessment of one tool result.
type Verdict struct {
	OK       bool     `json:"ok"`
	Issues   []string `json:"issues"`
	Severity Severity `json:"severity"`
}

func (v *Verdict) note(s Severity, format string, args ...any) {
	v.Issues = append(v.Issues, fmt.Sprintf(format, args...))
	if s == SeverityHigh {
		v.Severity = SeverityHigh
		v.OK = false
	}
}

// Check inspects a successful result of a given type.
type Check func(tool string, res tools.Result, v *Verdict)

// Critic validates tool results against domain invariants. It never
// changes or blocks a result.
type Critic struct {
	checks map[string][]Check
}

func NewCritic() *Critic {
	c := &Critic{checks: make(map[string][]Check)}
	c.Register("report", checkReport)
	c.Register("record_created", checkRecordCreated)
	c.Register("spreadsheet", checkSpreadsheet)
	c.Register("workflow_task", checkWorkflowTask)
	return c
}

// Register adds a check for results whose type discriminator is resultType.
func (c *Critic) Register(resultType string, check Check) {
	c.checks[resultType] = append(c.checks[resultType], check)
}

func (c *Critic) Evaluate(tool string, res tools.Result) Verdict {
	if res.IsError() {
		return Verdict{OK: false, Issues: []string{res.Message()}, Severity: SeverityHigh}
	}
	v := Verdict{OK: true, Issues: []string{}, Severity: SeverityLow}
	for _, check := range c.checks[res.Type()] {
		check(tool, res, &v)
	}
	return v
}

func checkReport(tool string, res tools.Result, v *Verdict) {
	if n, ok := number(res["matched_count"]); ok && n == 0 {
		v.note(SeverityLow, "%s matched no records; the filters may be too narrow", tool)
	}
	if rev, ok := number(res["revenue"]); ok && rev < 0 {
		v.note(SeverityHigh, "%s reported negative revenue %.2f", tool, rev)
	}
}

func checkRecordCreated(tool string, res tools.Result, v *Verdict) {
	if s, _ := res["id"].(string); s == "" {
		v.note(SeverityHigh, "%s created a record without an id", tool)
	}
	if s, _ := res["url"].(string); s == "" {
		v.note(SeverityHigh, "%s created a record without a reference url", tool)
	}
}

func checkSpreadsheet(tool string, res tools.Result, v *Verdict) {
	if s, _ := res["url"].(string); s == "" {
		v.note(SeverityHigh, "%s produced no download url", tool)
	}
}

func checkWorkflowTask(tool string, res tools.Result, v *Verdict) {
	if n, ok := number(res["matched_count"]); ok && n == 0 {
		v.note(SeverityLow, "%s: the task matched no shipped orders", tool)
	}
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}
