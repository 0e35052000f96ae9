package main

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"jomra/internal/adapter/agent"
	"jomra/internal/adapter/policy"
	"jomra/internal/adapter/tool"
	"jomra/internal/domain"
	"jomra/internal/infra/config"
	"jomra/internal/infra/logger"
	"jomra/internal/usecase/orchestration"
	"jomra/internal/usecase/supreme"
)

// agentComponents holds the tool registry, the agent registry and the two
// orchestration layers built on it.
type agentComponents struct {
	Tools        *tool.Registry
	APIClient    domain.APIClient // nil unless the remote agent is enabled
	Orchestrator *orchestration.Orchestrator
	Supreme      *supreme.Orchestrator
}

func initTools(cfg config.ToolsConfig, log *slog.Logger) (*tool.Registry, error) {
	reg := tool.NewRegistry(log)
	for _, t := range []domain.Tool{tool.NewCalculator(), tool.NewSystemInfo(), tool.NewWebSearch()} {
		if err := reg.Register(tool.NewRateLimited(t, cfg.RateLimit, cfg.Burst)); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// buildAgents creates the enabled agents in registration order. A failing
// agent is logged and skipped by the registry, not here.
func buildAgents(cfg *config.Config, tools domain.ToolRegistry, recall agent.Recaller, api domain.APIClient, log *slog.Logger) []domain.Agent {
	enabled := cfg.Agents.Enabled
	var agents []domain.Agent

	qa := agent.NewQAAgent(agent.NewHashModel("qa-local"), log)
	if slices.Contains(enabled, qa.ID()) {
		agents = append(agents, qa)
	}
	if slices.Contains(enabled, "tool_agent") {
		agents = append(agents, agent.NewToolAgent(tools, log))
	}
	if slices.Contains(enabled, "chain_of_thought") {
		// Wraps its own QA agent so it works even when qa_agent is disabled.
		inner := qa
		if !slices.Contains(enabled, qa.ID()) {
			inner = agent.NewQAAgent(agent.NewHashModel("qa-local"), log)
		}
		agents = append(agents, agent.NewChainOfThoughtAgent(inner, recall, log))
	}
	if slices.Contains(enabled, "planning") {
		agents = append(agents, agent.NewPlanningAgent())
	}
	if slices.Contains(enabled, "rl_agent") {
		agents = append(agents, agent.NewRLAgent(agent.NewLinearQModel("dqn-local"), log))
	}
	if slices.Contains(enabled, "multimodal") {
		agents = append(agents, agent.NewMultimodalAgent())
	}
	if r := cfg.Agents.Remote; r.Enabled {
		agents = append(agents, agent.NewRemoteAgent(api, agent.RemoteOptions{
			ID:           r.ID,
			Model:        r.Model,
			SystemPrompt: r.SystemPrompt,
			Latency:      r.Latency,
		}, log))
	}
	return agents
}

func policyKey(cfg *config.Config) domain.PolicyKey {
	return domain.PolicyKey{
		Environment: cfg.Policy.Environment,
		Complexity:  cfg.Policy.Complexity,
		PerfProfile: cfg.Policy.PerfProfile,
	}
}

// initAgents registers every enabled agent and builds the orchestrators.
func initAgents(ctx context.Context, cfg *config.Config, mem *memoryComponents, sec *securityComponents, bus domain.EventBus, log *slog.Logger) (*agentComponents, error) {
	tools, err := initTools(cfg.Tools, log)
	if err != nil {
		return nil, fmt.Errorf("tools: %w", err)
	}

	var api domain.APIClient
	if r := cfg.Agents.Remote; r.Enabled && r.APIKey != "" {
		api = agent.NewAnthropicClient(r.APIKey, r.Model, r.MaxTokens)
	}

	registry := orchestration.NewRegistry(bus, log)
	for _, a := range buildAgents(cfg, tools, mem.Store, api, log) {
		if err := registry.Register(ctx, a); err != nil {
			log.Debug("agent skipped", "agent", a.ID(), "code", domain.ErrorCodeOf(err), "error", err)
		}
	}
	if registry.Len() == 0 {
		return nil, fmt.Errorf("%w: no agent initialized", domain.ErrNoSuitableAgent)
	}

	oc := cfg.Orchestrator
	orch := orchestration.NewOrchestrator(registry, orchestration.CoordinatorConfig{
		Workers:       oc.Workers,
		TimeoutFactor: oc.TimeoutFactor,
		MinTimeout:    oc.MinTimeout,
		MaxTimeout:    oc.MaxTimeout,
		EnsembleWait:  oc.EnsembleWait,
		Breaker: orchestration.BreakerConfig{
			Enabled:     oc.CircuitBreaker.Enabled,
			MaxFailures: oc.CircuitBreaker.MaxFailures,
			Timeout:     oc.CircuitBreaker.Timeout,
			Interval:    oc.CircuitBreaker.Interval,
		},
	}, bus, logger.Component(log, "orchestration"))

	sc := cfg.Supreme
	table := policy.Load(cfg.Policy.Path, sc.Roles, log)
	sup := supreme.New(supreme.Config{
		MaxSteps:        sc.MaxSteps,
		ConfidenceFloor: sc.ConfidenceFloor,
		RecallTopK:      sc.RecallTopK,
		SmoothingFactor: sc.SmoothingFactor,
		InitialAccuracy: sc.InitialAccuracy,
		DefaultAgent:    sc.DefaultAgent,
		ArithmeticAgent: sc.ArithmeticAgent,
		CoderAgent:      sc.CoderAgent,
		ReasoningAgent:  sc.ReasoningAgent,
		PolicyKey:       policyKey(cfg),
	}, supreme.Deps{
		Screener:    sec.Screener,
		Agents:      registry,
		Runner:      orch.Coordinator(),
		Memory:      mem.Store,
		History:     mem.Window,
		Policy:      table,
		Preferences: mem.Store.Preferences(),
		Tools:       tools,
		APIClient:   api,
		Bus:         bus,
		Logger:      log,
	})

	ids := make([]string, 0, registry.Len())
	for _, a := range registry.List() {
		ids = append(ids, a.ID())
	}
	log.Info("agents ready", "agents", ids, "policies", table.Len(), "tools", len(tools.List()))

	return &agentComponents{Tools: tools, APIClient: api, Orchestrator: orch, Supreme: sup}, nil
}
