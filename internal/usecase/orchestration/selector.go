package orchestration

import (
	"strings"

	"jomra/internal/domain"
)

type keywordRule struct {
	words []string
	cap   domain.Capability
}

// defaultRules are evaluated in order; the first rule with a matching word
// decides the capability.
var defaultRules = []keywordRule{
	{[]string{"calculate", "math"}, domain.CapToolUsage},
	{[]string{"learn", "remember"}, domain.CapReinforcementLearning},
	{[]string{"search", "find"}, domain.CapToolUsage},
	{[]string{"github", "repo", "code"}, domain.CapToolUsage},
	{[]string{"supabase", "db", "database"}, domain.CapToolUsage},
	{[]string{"vercel", "deploy"}, domain.CapToolUsage},
	{[]string{"plan", "schedule"}, domain.CapPlanning},
	{[]string{"analyze", "reason", "why"}, domain.CapReasoning},
	{[]string{"image", "photo", "picture"}, domain.CapVision},
	{[]string{"audio", "voice"}, domain.CapAudio},
}

// Selector picks the agent best suited to an input.
type Selector struct {
	rules []keywordRule
}

// NewSelector returns a selector with the built-in keyword rules.
func NewSelector() *Selector {
	return &Selector{rules: defaultRules}
}

// CapabilityFor maps input text onto the capability it needs. Matching is
// substring-based on the lower-cased text; QUESTION_ANSWERING is the default.
func (s *Selector) CapabilityFor(text string) domain.Capability {
	lower := strings.ToLower(text)
	for _, r := range s.rules {
		for _, w := range r.words {
			if strings.Contains(lower, w) {
				return r.cap
			}
		}
	}
	return domain.CapQuestionAnswering
}

// Select returns the best candidate for input. Among agents with the needed
// capability a HEALTHY agent wins, lower latency breaking ties; otherwise
// DEGRADED beats the rest. Equal candidates keep first-seen order. With no
// capable agent the first candidate is returned; with no candidates, false.
func (s *Selector) Select(input domain.AgentInput, candidates []domain.Agent) (domain.Agent, bool) {
	if len(candidates) == 0 {
		return nil, false
	}
	want := s.CapabilityFor(input.Text)

	var (
		best     domain.Agent
		bestRank int
	)
	for _, a := range candidates {
		if !domain.HasCapability(a, want) {
			continue
		}
		rank := healthRank(a.Health().State)
		switch {
		case best == nil, rank < bestRank:
			best, bestRank = a, rank
		case rank == bestRank && rank == 0 && a.EstimatedLatency() < best.EstimatedLatency():
			best = a
		}
	}
	if best == nil {
		return candidates[0], true
	}
	return best, true
}

func healthRank(s domain.HealthState) int {
	switch s {
	case domain.HealthHealthy:
		return 0
	case domain.HealthDegraded:
		return 1
	default:
		return 2
	}
}
