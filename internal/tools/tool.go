package tools

import (
	"context"
	"fmt"
	"strings"
)

// RiskTier classifies how much irreversible real-world effect a tool call
// can have.
type RiskTier string

const (
	RiskLow      RiskTier = "low"
	RiskMedium   RiskTier = "medium"
	RiskHigh     RiskTier = "high"
	RiskCritical RiskTier = "critical"
)

// ParseRiskTier parses a tier name case-insensitively.
func ParseRiskTier(s string) (RiskTier, bool) {
	switch RiskTier(strings.ToLower(strings.TrimSpace(s))) {
	case RiskLow:
		return RiskLow, true
	case RiskMedium:
		return RiskMedium, true
	case RiskHigh:
		return RiskHigh, true
	case RiskCritical:
		return RiskCritical, true
	}
	return "", false
}

// RequiresConfirmation reports whether calls at this tier need an explicit
// confirmed=true argument.
func (r RiskTier) RequiresConfirmation() bool {
	return r == RiskHigh || r == RiskCritical
}

// Descriptor is the public, immutable description of a registered tool.
type Descriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema for the tool's inputs
	Risk        RiskTier       `json:"risk_tier"`
}

func (d Descriptor) validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("tool descriptor has no name")
	}
	if d.Risk != "" {
		if _, ok := ParseRiskTier(string(d.Risk)); !ok {
			return fmt.Errorf("tool %q has invalid risk tier %q", d.Name, d.Risk)
		}
	}
	return nil
}

// Tool defines the capability every built-in or discovered tool implements.
type Tool interface {
	Describe() Descriptor
	Invoke(ctx context.Context, args map[string]any) (Result, error)
}

type callerKey struct{}

// WithCaller stores the conversation (chat) identifier on ctx so tools can
// attribute side effects to their owner.
func WithCaller(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, callerKey{}, id)
}

// CallerFrom returns the identifier stored by WithCaller.
func CallerFrom(ctx context.Context) string {
	id, _ := ctx.Value(callerKey{}).(string)
	return id
}

// SplitCaller splits a "channel:chat" caller identifier. Identifiers without
// a channel prefix return an empty channel.
func SplitCaller(id string) (channel, chatID string) {
	if i := strings.IndexByte(id, ':'); i > 0 {
		return strings.ToLower(id[:i]), id[i+1:]
	}
	return "", id
}
