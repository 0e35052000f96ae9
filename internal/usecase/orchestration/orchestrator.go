package orchestration

import (
	"context"
	"log/slog"

	"jomra/internal/domain"
)

// Orchestrator ties the registry, selector and coordinator together.
type Orchestrator struct {
	registry *Registry
	selector *Selector
	coord    *Coordinator
	logger   *slog.Logger
}

// NewOrchestrator wires an Orchestrator around registry.
func NewOrchestrator(registry *Registry, cfg CoordinatorConfig, bus domain.EventBus, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		registry: registry,
		selector: NewSelector(),
		coord:    NewCoordinator(cfg, registry, bus, logger),
		logger:   logger,
	}
}

// Registry returns the underlying registry.
func (o *Orchestrator) Registry() *Registry { return o.registry }

// Coordinator returns the underlying coordinator.
func (o *Orchestrator) Coordinator() *Coordinator { return o.coord }

// ProcessSingle selects one agent for input and runs it.
func (o *Orchestrator) ProcessSingle(ctx context.Context, ec *domain.ExecutionContext, input domain.AgentInput) *domain.AgentResponse {
	a, ok := o.selector.Select(input, o.registry.List())
	if !ok {
		o.logger.Warn("no agent available", "capability", string(o.selector.CapabilityFor(input.Text)))
		return domain.ErrorResponse("No suitable agent found")
	}
	o.logger.Debug("agent selected", "agent", a.ID())
	return o.coord.RunSingle(ctx, ec, input, a)
}

// ProcessEnsemble runs input against every registered agent.
func (o *Orchestrator) ProcessEnsemble(ctx context.Context, ec *domain.ExecutionContext, input domain.AgentInput) *domain.AgentResponse {
	return o.coord.RunEnsemble(ctx, ec, input, o.registry.List())
}

// ProcessPipeline runs the named agents in sequence.
func (o *Orchestrator) ProcessPipeline(ctx context.Context, ec *domain.ExecutionContext, input domain.AgentInput, ids []string) *domain.AgentResponse {
	return o.coord.RunPipeline(ctx, ec, input, ids)
}

// Health snapshots every registered agent's health.
func (o *Orchestrator) Health() map[string]domain.HealthStatus {
	return o.registry.Health()
}

// Shutdown shuts down every registered agent.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	return o.registry.Shutdown(ctx)
}
