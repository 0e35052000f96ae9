// Package orchestration registers agents, selects one per request and runs
// agents under time bounds, alone, as an ensemble or as a pipeline.
package orchestration

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"jomra/internal/domain"
	"jomra/internal/usecase/eventbus"
)

// Registry holds initialized agents in registration order.
type Registry struct {
	mu     sync.RWMutex
	order  []domain.Agent
	byID   map[string]domain.Agent
	bus    domain.EventBus
	logger *slog.Logger
}

// NewRegistry creates an empty registry. bus may be nil.
func NewRegistry(bus domain.EventBus, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		byID:   make(map[string]domain.Agent),
		bus:    bus,
		logger: logger,
	}
}

// Register initializes a and adds it. An agent whose Initialize fails is
// logged and left out; the error is returned for the caller's information.
func (r *Registry) Register(ctx context.Context, a domain.Agent) error {
	r.mu.RLock()
	_, dup := r.byID[a.ID()]
	r.mu.RUnlock()
	if dup {
		return domain.NewSubSystemError("agent", "Registry.Register", domain.ErrDuplicate, a.ID())
	}

	if err := a.Initialize(ctx); err != nil {
		r.logger.Error("agent failed to initialize", "agent", a.ID(), "name", a.Name(), "error", err)
		return domain.WrapOp("Registry.Register", err)
	}

	r.mu.Lock()
	if _, dup := r.byID[a.ID()]; dup {
		r.mu.Unlock()
		return domain.NewSubSystemError("agent", "Registry.Register", domain.ErrDuplicate, a.ID())
	}
	r.byID[a.ID()] = a
	r.order = append(r.order, a)
	r.mu.Unlock()

	r.logger.Info("registered agent", "agent", a.ID(), "name", a.Name())
	eventbus.Emit(ctx, r.bus, domain.EventAgentRegistered, map[string]string{"agent_id": a.ID()})
	return nil
}

// Get returns the agent with id.
func (r *Registry) Get(id string) (domain.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	return a, ok
}

// List returns agents in registration order.
func (r *Registry) List() []domain.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Agent, len(r.order))
	copy(out, r.order)
	return out
}

// Len reports the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Health snapshots every agent's health keyed by id.
func (r *Registry) Health() map[string]domain.HealthStatus {
	agents := r.List()
	out := make(map[string]domain.HealthStatus, len(agents))
	for _, a := range agents {
		out[a.ID()] = a.Health()
	}
	return out
}

// Shutdown shuts every agent down, continuing past failures.
func (r *Registry) Shutdown(ctx context.Context) error {
	var errs []error
	for _, a := range r.List() {
		if err := a.Shutdown(ctx); err != nil {
			r.logger.Error("agent shutdown failed", "agent", a.ID(), "error", err)
			errs = append(errs, domain.WrapOp("shutdown "+a.ID(), err))
		}
	}
	return errors.Join(errs...)
}
