package supreme

import (
	"sync"
	"time"
)

// AgentStats is the smoothed performance of one agent.
type AgentStats struct {
	Latency  time.Duration
	Accuracy float64
	Samples  int
}

// PerformanceTracker keeps an exponential moving average of latency and
// accuracy per agent.
type PerformanceTracker struct {
	alpha   float64
	initial float64

	mu    sync.Mutex
	stats map[string]AgentStats
}

// NewPerformanceTracker creates a tracker. alpha outside (0,1] becomes 0.2;
// initialAccuracy outside [0,1] becomes 0.9.
func NewPerformanceTracker(alpha, initialAccuracy float64) *PerformanceTracker {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.2
	}
	if initialAccuracy < 0 || initialAccuracy > 1 {
		initialAccuracy = 0.9
	}
	return &PerformanceTracker{alpha: alpha, initial: initialAccuracy, stats: make(map[string]AgentStats)}
}

// Seed records an agent's advertised latency unless it already has stats.
func (t *PerformanceTracker) Seed(id string, estimated time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.stats[id]; !ok {
		t.stats[id] = AgentStats{Latency: estimated, Accuracy: t.initial}
	}
}

// Observe folds one measured call into the averages and returns the result.
func (t *PerformanceTracker) Observe(id string, latency time.Duration, accuracy float64) AgentStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.stats[id]
	if !ok {
		s = AgentStats{Latency: time.Second, Accuracy: t.initial}
	}
	s.Latency = time.Duration((1-t.alpha)*float64(s.Latency) + t.alpha*float64(latency))
	s.Accuracy = (1-t.alpha)*s.Accuracy + t.alpha*accuracy
	s.Samples++
	t.stats[id] = s
	return s
}

// Stats returns the current averages for id.
func (t *PerformanceTracker) Stats(id string) (AgentStats, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.stats[id]
	return s, ok
}

// Snapshot copies every agent's stats.
func (t *PerformanceTracker) Snapshot() map[string]AgentStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]AgentStats, len(t.stats))
	for id, s := range t.stats {
		out[id] = s
	}
	return out
}
