// Package agent holds the concrete agents the orchestrator routes to.
package agent

import (
	"sync"
	"time"

	"jomra/internal/domain"
)

// base carries the identity and guarded health state shared by every agent.
type base struct {
	id      string
	name    string
	caps    []domain.Capability
	latency time.Duration

	mu     sync.RWMutex
	ready  bool
	health domain.HealthStatus
}

func newBase(id, name string, latency time.Duration, caps ...domain.Capability) *base {
	return &base{
		id:      id,
		name:    name,
		caps:    caps,
		latency: latency,
		health:  domain.HealthStatus{State: domain.HealthInitializing},
	}
}

func (b *base) ID() string                      { return b.id }
func (b *base) Name() string                    { return b.name }
func (b *base) EstimatedLatency() time.Duration { return b.latency }

func (b *base) Capabilities() []domain.Capability {
	out := make([]domain.Capability, len(b.caps))
	copy(out, b.caps)
	return out
}

func (b *base) Health() domain.HealthStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.health
}

func (b *base) markReady() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ready = true
	b.health = domain.Healthy()
}

func (b *base) markDown(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ready = false
	b.health = domain.HealthStatus{State: domain.HealthUnhealthy, Reason: reason}
}

func (b *base) markDegraded(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ready {
		b.health = domain.HealthStatus{State: domain.HealthDegraded, Reason: reason}
	}
}

// checkReady returns a CONFIGURATION_ERROR when the agent was never
// initialized or has been shut down.
func (b *base) checkReady() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.ready {
		return domain.NewAgentError(domain.KindConfigurationError, "Agent not initialized", nil)
	}
	return nil
}
