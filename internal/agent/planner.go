package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/rahul/ordermind/internal/tools"
	"github.com/tmc/langchaingo/llms"
)

const (
	PlanSourceModel    = "model"
	PlanSourceFallback = "fallback"
)

// PlanStep is one ordered, tool-hinted step of a plan.
type PlanStep struct {
	StepNumber int    `json:"step_number"`
	Action     string `json:"action"`
	ToolHint   string `json:"tool_hint"`
	DependsOn  []int  `json:"depends_on"`
	Risk       string `json:"risk"`
}

// Plan is a breakdown of the user's goal. It always has at least one step.
type Plan struct {
	Goal            string     `json:"goal"`
	SuccessCriteria []string   `json:"success_criteria"`
	Steps           []PlanStep `json:"steps"`
	Source          string     `json:"source"`
}

// FallbackPlan is the deterministic plan used whenever the model cannot
// produce one.
func FallbackPlan(goal string) Plan {
	return Plan{
		Goal:            goal,
		SuccessCriteria: []string{"The request is answered using tool results, not guesses."},
		Steps: []PlanStep{
			{StepNumber: 1, Action: "Analyze the request and choose the tools needed", DependsOn: []int{}, Risk: string(tools.RiskLow)},
			{StepNumber: 2, Action: "Execute the chosen tools with retries and report the results", DependsOn: []int{1}, Risk: string(tools.RiskMedium)},
		},
		Source: PlanSourceFallback,
	}
}

// Planner asks the model for a structured plan before tools run.
type Planner struct {
	Model   llms.Model
	Enabled bool
	Prompt  string
	Timeout time.Duration
}

func NewPlanner(model llms.Model, enabled bool, prompt string, timeout time.Duration) *Planner {
	return &Planner{Model: model, Enabled: enabled, Prompt: prompt, Timeout: timeout}
}

// Build never fails: any problem with the model answer yields FallbackPlan.
func (p *Planner) Build(ctx context.Context, turns []Turn, catalog []tools.Descriptor) Plan {
	user, ok := LatestUserTurn(turns)
	if !ok {
		return FallbackPlan("")
	}
	goal := strings.TrimSpace(user.Content)
	if p == nil || !p.Enabled || p.Model == nil {
		return FallbackPlan(goal)
	}

	plan, err := p.request(ctx, goal, catalog)
	if err != nil {
		log.Printf("planner: using fallback plan: %v", err)
		return FallbackPlan(goal)
	}
	return plan
}

func (p *Planner) request(ctx context.Context, goal string, catalog []tools.Descriptor) (Plan, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	names := make([]string, 0, len(catalog))
	for _, d := range catalog {
		names = append(names, fmt.Sprintf("- %s (%s risk): %s", exposedName(d.Name), d.Risk, d.Description))
	}
	system := fmt.Sprintf(`%s

Reply with strict JSON only, shaped as:
{"goal": string, "success_criteria": [string], "steps": [{"step_number": int, "action": string, "tool_hint": string, "depends_on": [int], "risk": "low"|"medium"|"high"|"critical"}]}
tool_hint must be one of the tool names below or "".

## Available tools
%s`, p.Prompt, strings.Join(names, "\n"))

	messages := []llms.MessageContent{
		{Role: llms.ChatMessageTypeSystem, Parts: []llms.ContentPart{llms.TextPart(system)}},
		{Role: llms.ChatMessageTypeHuman, Parts: []llms.ContentPart{llms.TextPart(goal)}},
	}
	resp, err := p.Model.GenerateContent(ctx, messages, llms.WithJSONMode())
	if err != nil {
		return Plan{}, err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return Plan{}, fmt.Errorf("empty planner response")
	}
	return parsePlan(resp.Choices[0].Content, goal, catalog)
}

func parsePlan(content, goal string, catalog []tools.Descriptor) (Plan, error) {
	content = stripFences(content)
	if content == "" {
		return Plan{}, fmt.Errorf("empty planner content")
	}
	var plan Plan
	if err := json.Unmarshal([]byte(content), &plan); err != nil {
		return Plan{}, fmt.Errorf("unparsable plan: %w", err)
	}
	if len(plan.Steps) == 0 {
		return Plan{}, fmt.Errorf("plan has no steps")
	}

	known := make(map[string]tools.Descriptor)
	for _, d := range catalog {
		for _, alias := range tools.Aliases(d.Name) {
			known[alias] = d
		}
	}
	for i := range plan.Steps {
		s := &plan.Steps[i]
		if s.StepNumber <= 0 {
			s.StepNumber = i + 1
		}
		if s.DependsOn == nil {
			s.DependsOn = []int{}
		}
		if s.ToolHint != "" {
			d, ok := known[s.ToolHint]
			if !ok {
				d, ok = known[tools.SnakeCase(s.ToolHint)]
			}
			if !ok {
				s.ToolHint = ""
			} else {
				s.ToolHint = exposedName(d.Name)
				if s.Risk == "" {
					s.Risk = string(d.Risk)
				}
			}
		}
		if _, ok := tools.ParseRiskTier(s.Risk); !ok {
			s.Risk = string(tools.RiskMedium)
		}
	}
	if strings.TrimSpace(plan.Goal) == "" {
		plan.Goal = goal
	}
	if plan.SuccessCriteria == nil {
		plan.SuccessCriteria = []string{}
	}
	plan.Source = PlanSourceModel
	return plan, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}

// exposedName is the function name a tool is offered to the model under.
// Providers reject spaces in function names, so dynamic names such as
// "Fetch Tracking Page" are offered in snake_case and resolved through
// the registry aliases.
func exposedName(name string) string {
	return tools.SnakeCase(name)
}
