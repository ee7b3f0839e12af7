package governance

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/rahul/ordermind/internal/tools"
	"github.com/rahul/ordermind/pkg/config"
)

// Decision is the outcome of authorizing one tool call. It is computed
// fresh for every call because arguments such as confirmed change it.
type Decision struct {
	Allowed              bool           `json:"allowed"`
	Risk                 tools.RiskTier `json:"risk_tier"`
	RequiresConfirmation bool           `json:"requires_confirmation"`
	Reason               string         `json:"reason"`
}

// Gate authorizes tool calls by risk tier. It performs no I/O and is safe
// for concurrent use once built.
type Gate struct {
	tiers       map[string]tools.RiskTier
	deniedTools map[string]bool
	deniedRegex []*regexp.Regexp
}

// NewGate builds a gate from a tool-name -> tier table. Names missing from
// the table are treated as medium risk.
func NewGate(tiers map[string]tools.RiskTier) *Gate {
	g := &Gate{
		tiers:       make(map[string]tools.RiskTier, len(tiers)),
		deniedTools: make(map[string]bool),
	}
	for name, tier := range tiers {
		g.tiers[name] = tier
	}
	return g
}

// NewPolicyGate builds a gate from the catalog's declared tiers. Tiers and
// deny lists in pol override them; pol may name a tool canonically or in
// its snake_case form.
func NewPolicyGate(catalog []tools.Descriptor, pol config.Policy) (*Gate, error) {
	denied := make(map[string]bool, len(pol.DeniedTools))
	for _, name := range pol.DeniedTools {
		denied[name] = true
	}

	tiers := make(map[string]tools.RiskTier, len(catalog))
	var deny []string
	for _, d := range catalog {
		tiers[d.Name] = d.Risk
		for _, name := range []string{d.Name, tools.SnakeCase(d.Name)} {
			if raw, ok := pol.Tier(name); ok {
				tier, ok := tools.ParseRiskTier(raw)
				if !ok {
					return nil, fmt.Errorf("invalid risk tier %q for %s", raw, name)
				}
				tiers[d.Name] = tier
			}
			if denied[name] {
				deny = append(deny, d.Name)
			}
		}
	}

	g := NewGate(tiers)
	for _, name := range deny {
		g.DenyTool(name)
	}
	for _, pattern := range pol.DeniedArguments {
		if err := g.DenyArguments(pattern); err != nil {
			return nil, fmt.Errorf("invalid denied argument pattern %q: %w", pattern, err)
		}
	}
	return g, nil
}

// DenyTool blocks a tool regardless of its tier or confirmation.
func (g *Gate) DenyTool(name string) {
	g.deniedTools[name] = true
}

// DenyArguments blocks any call whose serialized arguments match pattern.
func (g *Gate) DenyArguments(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	g.deniedRegex = append(g.deniedRegex, re)
	return nil
}

// Tier returns the configured tier for name, defaulting to medium.
func (g *Gate) Tier(name string) tools.RiskTier {
	if tier, ok := g.tiers[name]; ok {
		return tier
	}
	return tools.RiskMedium
}

func (g *Gate) Authorize(name string, args map[string]any) Decision {
	tier := g.Tier(name)

	if g.deniedTools[name] {
		return Decision{
			Risk:   tier,
			Reason: fmt.Sprintf("Tool '%s' is restricted by system policy", name),
		}
	}
	if len(g.deniedRegex) > 0 {
		raw, _ := json.Marshal(args)
		for _, re := range g.deniedRegex {
			if re.Match(raw) {
				return Decision{
					Risk:   tier,
					Reason: fmt.Sprintf("Arguments match restricted pattern: %s", re.String()),
				}
			}
		}
	}

	if !tier.RequiresConfirmation() {
		return Decision{Allowed: true, Risk: tier, Reason: fmt.Sprintf("%s risk tool approved", tier)}
	}
	if tools.Truthy(args["confirmed"]) {
		return Decision{
			Allowed:              true,
			Risk:                 tier,
			RequiresConfirmation: true,
			Reason:               fmt.Sprintf("%s risk tool approved with explicit confirmation", tier),
		}
	}
	return Decision{
		Risk:                 tier,
		RequiresConfirmation: true,
		Reason: fmt.Sprintf("Tool '%s' is %s risk and needs explicit user confirmation. "+
			"Ask the user to confirm, then resubmit the call with confirmed=true.", name, tier),
	}
}
