package main

import (
	"database/sql"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/rahul/ordermind/internal/agent"
	"github.com/rahul/ordermind/internal/gateway"
	"github.com/rahul/ordermind/internal/governance"
	"github.com/rahul/ordermind/internal/observability"
	"github.com/rahul/ordermind/internal/report"
	"github.com/rahul/ordermind/internal/store"
	"github.com/rahul/ordermind/internal/tools"
	"github.com/rahul/ordermind/internal/workflow"
	"github.com/rahul/ordermind/pkg/config"
)

// chatChannels are the gateways the send_notification tool can address.
var chatChannels = []string{"telegram", "discord"}

// app holds the wired runtime shared by the commands.
type app struct {
	cfg     *config.Config
	db      *sql.DB
	logger  *observability.Logger
	records *store.RecordStore
	history *store.HistoryStore
	reports *report.Writer
	engine  *workflow.Engine
	router  *gateway.Router

	registry *tools.Registry
	brain    *agent.ChatBrain
}

// openApp opens storage and the workflow engine. The agent is wired
// separately by withAgent because task commands need no model.
func openApp(cfg *config.Config) (*app, error) {
	db, err := store.Open(cfg.Memory.Path)
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:     cfg,
		db:      db,
		logger:  observability.NewLogger(cfg.App.LogDir),
		records: store.NewRecordStore(db),
		history: store.NewHistoryStore(db),
		reports: report.NewWriter(cfg.HTTP.ReportsDir, cfg.HTTP.BaseURL),
		router:  gateway.NewRouter(),
	}
	a.engine = workflow.NewEngine(store.NewDocumentStore(db), a.records, a.reports)
	a.engine.OnEvent = a.logger.LogWorkflow
	if cfg.Agent.ClaimLeaseSeconds > 0 {
		a.engine.Lease = time.Duration(cfg.Agent.ClaimLeaseSeconds) * time.Second
	}
	return a, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

// withAgent builds the tool registry, policy and conversation loop.
func (a *app) withAgent() error {
	model, modelName, err := newModel(a.cfg)
	if err != nil {
		return err
	}

	deps := tools.Deps{
		Records:  a.records,
		Sheets:   a.reports,
		Workflow: a.engine,
		Chats:    map[string]tools.ChatSender{},
		BaseURL:  a.cfg.HTTP.BaseURL,
	}
	if wa, ok := a.cfg.GetWhatsAppConfig(); ok {
		deps.WhatsApp = tools.NewCloudAPIClient(wa.BaseURL, wa.PhoneNumberID, wa.Token)
	}
	for _, name := range chatChannels {
		if _, ok := a.cfg.GetGatewayConfig(name); ok {
			deps.Chats[name] = a.router.Sender(name)
		}
	}

	a.registry = tools.NewRegistry()
	for _, t := range tools.Builtins(deps) {
		if err := a.registry.Register(t); err != nil {
			return err
		}
	}
	for _, err := range a.registry.Discover(tools.NewTrackingPageTool()) {
		log.Printf("Warning: skipping plugin: %v", err)
	}

	prompts := agent.NewPromptManager(a.cfg.App.Prompts)
	systemPrompt, err := prompts.GetSystemPrompt()
	if err != nil {
		return fmt.Errorf("failed to load system prompt: %w", err)
	}
	plannerPrompt, err := prompts.GetPlannerPrompt()
	if err != nil {
		return fmt.Errorf("failed to load planner prompt: %w", err)
	}
	policy := a.cfg.Policy(systemPrompt, plannerPrompt)

	gate, err := governance.NewPolicyGate(a.registry.Catalog(), policy)
	if err != nil {
		return err
	}
	orch := agent.NewOrchestrator(policy.MaxAttempts, policy.Backoff, policy.ToolTimeout)
	agent.RegisterDefaultRepairs(orch, policy.DefaultCountryCode)
	planner := agent.NewPlanner(model, policy.PlannerEnabled, policy.PlannerPrompt, policy.ModelTimeout)

	runner := agent.NewRunner(model, a.registry, gate, orch, agent.NewCritic(), planner, policy, a.logger)
	runner.ModelName = modelName
	a.brain = agent.NewChatBrain(runner, a.history, policy.HistoryLimit)

	log.Printf("Agent ready: model=%s tools=%d", modelName, len(a.registry.Catalog()))
	return nil
}

// newModel builds the default enabled provider.
func newModel(cfg *config.Config) (llms.Model, string, error) {
	pName, pCfg := cfg.GetDefaultProvider()
	if pName == "" {
		return nil, "", fmt.Errorf("no enabled provider found in config")
	}

	var (
		llm llms.Model
		err error
	)
	switch pName {
	case "openai", "openrouter":
		opts := []openai.Option{
			openai.WithToken(pCfg.APIKey),
			openai.WithModel(pCfg.Model),
		}
		if pCfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(pCfg.BaseURL))
		}
		llm, err = openai.New(opts...)
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(pCfg.Model)}
		if pCfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(pCfg.BaseURL))
		}
		llm, err = ollama.New(opts...)
	default:
		return nil, "", fmt.Errorf("provider %s not supported", pName)
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to initialize %s: %w", pName, err)
	}
	return llm, pName + "/" + pCfg.Model, nil
}

func reportsPath(cfg *config.Config) string {
	abs, err := filepath.Abs(cfg.HTTP.ReportsDir)
	if err != nil {
		return cfg.HTTP.ReportsDir
	}
	return abs
}
