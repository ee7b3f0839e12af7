package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_JSONKeepsDefaults(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"providers": {"ollama": {"model": "llama3.1", "base_url": "http://localhost:11434", "enabled": true}},
		"agent": {"max_iterations": 5, "risk_tiers": {"export_spreadsheet": "High"}}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Agent.MaxIterations)
	assert.Equal(t, 300, cfg.Agent.ClaimLeaseSeconds)
	assert.Equal(t, 3, cfg.Agent.MaxAttempts)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)

	name, p := cfg.GetDefaultProvider()
	assert.Equal(t, "ollama", name)
	assert.Equal(t, "llama3.1", p.Model)

	pol := cfg.Policy("system", "planner")
	assert.Equal(t, 500*time.Millisecond, pol.Backoff)
	assert.Equal(t, 30*time.Second, pol.ToolTimeout)
	tier, ok := pol.Tier("export_spreadsheet")
	assert.True(t, ok)
	assert.Equal(t, "high", tier)
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
gateways:
  telegram:
    enabled: true
    token_env: ORDERMIND_TEST_TG
agent:
  planner_enabled: false
  denied_tools: [update_record]
`)
	t.Setenv("ORDERMIND_TEST_TG", "123:abc")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Agent.PlannerEnabled)
	assert.Equal(t, []string{"update_record"}, cfg.Agent.DeniedTools)

	tg, ok := cfg.GetGatewayConfig("telegram")
	require.True(t, ok)
	assert.Equal(t, "123:abc", tg.Token)

	_, ok = cfg.GetGatewayConfig("discord")
	assert.False(t, ok)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(writeFile(t, "bad.json", `{"agent": {"max_attempts": 0}}`))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.yaml", "agent:\n  risk_tiers:\n    send_whatsapp: extreme\n"))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestPolicy_IsDetachedFromConfig(t *testing.T) {
	cfg := New()
	cfg.Agent.RiskTiers = map[string]string{"sales_report": "medium"}
	cfg.Agent.DeniedTools = []string{"a"}
	pol := cfg.Policy("", "")

	cfg.Agent.RiskTiers["sales_report"] = "critical"
	cfg.Agent.DeniedTools[0] = "b"

	tier, _ := pol.Tier("sales_report")
	assert.Equal(t, "medium", tier)
	assert.Equal(t, []string{"a"}, pol.DeniedTools)

	overrides := pol.TierOverrides()
	overrides["sales_report"] = "low"
	tier, _ = pol.Tier("sales_report")
	assert.Equal(t, "medium", tier)
}

func TestGetWhatsAppConfig(t *testing.T) {
	cfg := New()
	_, ok := cfg.GetWhatsAppConfig()
	assert.False(t, ok)

	cfg.WhatsApp = WhatsAppConfig{Enabled: true, PhoneNumberID: "1", Token: "t"}
	w, ok := cfg.GetWhatsAppConfig()
	assert.True(t, ok)
	assert.Equal(t, "t", w.Token)
}
