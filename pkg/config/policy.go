package config

import (
	"strings"
	"time"
)

// Policy is the runtime policy built once at startup and passed by value
// to the loop controller, gate and orchestrator. Risk tiers are held
// privately so no holder can change them after construction.
type Policy struct {
	SystemPrompt       string
	PlannerPrompt      string
	MaxIterations      int
	MaxAttempts        int
	Backoff            time.Duration
	ModelTimeout       time.Duration
	ToolTimeout        time.Duration
	ContextWindow      int
	PlannerEnabled     bool
	HistoryLimit       int
	DefaultCountryCode string
	DeniedTools        []string
	DeniedArguments    []string

	riskTiers map[string]string
}

// Policy derives the runtime policy from the agent section.
func (c *Config) Policy(systemPrompt, plannerPrompt string) Policy {
	a := c.Agent
	p := Policy{
		SystemPrompt:       systemPrompt,
		PlannerPrompt:      plannerPrompt,
		MaxIterations:      a.MaxIterations,
		MaxAttempts:        a.MaxAttempts,
		Backoff:            time.Duration(a.BackoffMillis) * time.Millisecond,
		ModelTimeout:       time.Duration(a.ModelTimeoutSeconds) * time.Second,
		ToolTimeout:        time.Duration(a.ToolTimeoutSeconds) * time.Second,
		ContextWindow:      a.ContextWindow,
		PlannerEnabled:     a.PlannerEnabled,
		HistoryLimit:       a.HistoryLimit,
		DefaultCountryCode: a.DefaultCountryCode,
		DeniedTools:        append([]string(nil), a.DeniedTools...),
		DeniedArguments:    append([]string(nil), a.DeniedArguments...),
		riskTiers:          make(map[string]string, len(a.RiskTiers)),
	}
	for name, tier := range a.RiskTiers {
		p.riskTiers[name] = strings.ToLower(tier)
	}
	return p
}

// Tier returns the configured risk tier override for a tool.
func (p Policy) Tier(tool string) (string, bool) {
	t, ok := p.riskTiers[tool]
	return t, ok
}

// TierOverrides returns a copy of every configured override.
func (p Policy) TierOverrides() map[string]string {
	out := make(map[string]string, len(p.riskTiers))
	for k, v := range p.riskTiers {
		out[k] = v
	}
	return out
}
