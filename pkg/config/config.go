package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App       AppConfig                 `json:"app" yaml:"app"`
	Gateways  map[string]GatewayConfig  `json:"gateways" yaml:"gateways"`
	Providers map[string]ProviderConfig `json:"providers" yaml:"providers"`
	Memory    MemoryConfig              `json:"memory" yaml:"memory"`
	HTTP      HTTPConfig                `json:"http" yaml:"http"`
	Agent     AgentConfig               `json:"agent" yaml:"agent"`
	WhatsApp  WhatsAppConfig            `json:"whatsapp" yaml:"whatsapp"`
}

type AppConfig struct {
	Name    string `json:"name" yaml:"name"`
	LogDir  string `json:"log_dir" yaml:"log_dir"`
	Prompts string `json:"prompts" yaml:"prompts"`
}

type GatewayConfig struct {
	Token    string `json:"token" yaml:"token"`
	TokenEnv string `json:"token_env,omitempty" yaml:"token_env,omitempty"`
	Enabled  bool   `json:"enabled" yaml:"enabled"`
}

type ProviderConfig struct {
	APIKey    string `json:"api_key" yaml:"api_key"`
	APIKeyEnv string `json:"api_key_env,omitempty" yaml:"api_key_env,omitempty"`
	Model     string `json:"model" yaml:"model"`
	BaseURL   string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Enabled   bool   `json:"enabled" yaml:"enabled"`
}

type MemoryConfig struct {
	Type string `json:"type" yaml:"type"`
	Path string `json:"path" yaml:"path"`
}

type HTTPConfig struct {
	Addr       string `json:"addr" yaml:"addr"`
	BaseURL    string `json:"base_url" yaml:"base_url"`
	ReportsDir string `json:"reports_dir" yaml:"reports_dir"`
}

// AgentConfig holds the loop, retry and risk settings. Durations are in
// milliseconds or seconds as their names say.
type AgentConfig struct {
	MaxIterations        int               `json:"max_iterations" yaml:"max_iterations"`
	MaxAttempts          int               `json:"max_attempts" yaml:"max_attempts"`
	BackoffMillis        int               `json:"backoff_ms" yaml:"backoff_ms"`
	ModelTimeoutSeconds  int               `json:"model_timeout_seconds" yaml:"model_timeout_seconds"`
	ToolTimeoutSeconds   int               `json:"tool_timeout_seconds" yaml:"tool_timeout_seconds"`
	ContextWindow        int               `json:"context_window" yaml:"context_window"`
	PlannerEnabled       bool              `json:"planner_enabled" yaml:"planner_enabled"`
	HistoryLimit         int               `json:"history_limit" yaml:"history_limit"`
	DefaultCountryCode   string            `json:"default_country_code" yaml:"default_country_code"`
	RiskTiers            map[string]string `json:"risk_tiers" yaml:"risk_tiers"`
	DeniedTools          []string          `json:"denied_tools" yaml:"denied_tools"`
	DeniedArguments      []string          `json:"denied_arguments" yaml:"denied_arguments"`
	ReminderAfterMinutes int               `json:"reminder_after_minutes" yaml:"reminder_after_minutes"`
	ReminderPollSeconds  int               `json:"reminder_poll_seconds" yaml:"reminder_poll_seconds"`
	ClaimLeaseSeconds    int               `json:"claim_lease_seconds" yaml:"claim_lease_seconds"`
}

type WhatsAppConfig struct {
	Enabled       bool   `json:"enabled" yaml:"enabled"`
	BaseURL       string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	PhoneNumberID string `json:"phone_number_id" yaml:"phone_number_id"`
	Token         string `json:"token" yaml:"token"`
	TokenEnv      string `json:"token_env,omitempty" yaml:"token_env,omitempty"`
}

// New returns a config with defaults applied.
func New() *Config {
	return &Config{
		App: AppConfig{
			Name:    "ordermind",
			LogDir:  "logs",
			Prompts: "./prompts",
		},
		Gateways:  map[string]GatewayConfig{},
		Providers: map[string]ProviderConfig{},
		Memory: MemoryConfig{
			Type: "sqlite",
			Path: "ordermind.db",
		},
		HTTP: HTTPConfig{
			Addr:       ":8080",
			BaseURL:    "http://localhost:8080",
			ReportsDir: "reports",
		},
		Agent: AgentConfig{
			MaxIterations:        8,
			MaxAttempts:          3,
			BackoffMillis:        500,
			ModelTimeoutSeconds:  120,
			ToolTimeoutSeconds:   30,
			ContextWindow:        8192,
			PlannerEnabled:       true,
			HistoryLimit:         20,
			DefaultCountryCode:   "91",
			ReminderAfterMinutes: 60,
			ReminderPollSeconds:  300,
			ClaimLeaseSeconds:    300,
		},
	}
}

// Load reads a JSON or YAML config file, chosen by extension, on top of
// the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := New()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig is Load for process startup: any failure is fatal.
func LoadConfig(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		log.Fatalf("%v", err)
	}
	return cfg
}

// Validate rejects settings the runtime cannot work with.
func (c *Config) Validate() error {
	a := c.Agent
	if a.MaxIterations < 1 {
		return fmt.Errorf("agent.max_iterations must be at least 1")
	}
	if a.MaxAttempts < 1 {
		return fmt.Errorf("agent.max_attempts must be at least 1")
	}
	if a.BackoffMillis < 0 || a.ModelTimeoutSeconds < 0 || a.ToolTimeoutSeconds < 0 {
		return fmt.Errorf("agent timeouts and backoff must not be negative")
	}
	for name, tier := range a.RiskTiers {
		switch strings.ToLower(tier) {
		case "low", "medium", "high", "critical":
		default:
			return fmt.Errorf("agent.risk_tiers[%s]: unknown tier %q", name, tier)
		}
	}
	return nil
}

// GetDefaultProvider returns the enabled provider with the smallest name,
// so the choice does not depend on map order.
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	best := ""
	for name, p := range c.Providers {
		if p.Enabled && (best == "" || name < best) {
			best = name
		}
	}
	if best == "" {
		return "", ProviderConfig{}
	}
	p := c.Providers[best]
	p.APIKey = resolveSecret(p.APIKey, p.APIKeyEnv)
	return best, p
}

// GetGatewayConfig returns the named gateway config if enabled.
func (c *Config) GetGatewayConfig(name string) (GatewayConfig, bool) {
	gw, ok := c.Gateways[name]
	if !ok || !gw.Enabled {
		return GatewayConfig{}, false
	}
	gw.Token = resolveSecret(gw.Token, gw.TokenEnv)
	if gw.Token == "" {
		return GatewayConfig{}, false
	}
	return gw, true
}

// GetWhatsAppConfig returns the WhatsApp Cloud API settings if enabled.
func (c *Config) GetWhatsAppConfig() (WhatsAppConfig, bool) {
	w := c.WhatsApp
	if !w.Enabled {
		return WhatsAppConfig{}, false
	}
	w.Token = resolveSecret(w.Token, w.TokenEnv)
	return w, w.Token != "" && w.PhoneNumberID != ""
}

func resolveSecret(value, env string) string {
	if value != "" || env == "" {
		return value
	}
	return os.Getenv(env)
}
