// Package conversation keeps a bounded window of recent user/agent turns.
package conversation

import (
	"slices"
	"sync"
	"time"

	"jomra/internal/domain"
)

// Window holds the most recent turns within a turn and token budget. The
// oldest turns are evicted first.
type Window struct {
	maxTurns  int
	maxTokens int
	estimator Estimator

	mu     sync.Mutex
	turns  []domain.ConversationTurn
	tokens int
}

// DefaultMaxTokens is the token budget used when none is given.
const DefaultMaxTokens = 4096

// NewWindow creates a window. maxTurns <= 0 leaves the turn count unbounded;
// maxTokens <= 0 uses DefaultMaxTokens. A nil estimator counts characters.
func NewWindow(maxTurns, maxTokens int, estimator Estimator) *Window {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if estimator == nil {
		estimator = CharEstimator{}
	}
	return &Window{maxTurns: maxTurns, maxTokens: maxTokens, estimator: estimator}
}

// Append adds a turn and evicts from the front until both limits hold. A
// single turn larger than the token budget is itself evicted.
func (w *Window) Append(userText, agentText string) domain.ConversationTurn {
	turn := domain.ConversationTurn{
		UserText:  userText,
		AgentText: agentText,
		Timestamp: time.Now(),
		Tokens:    w.estimator.Estimate(userText) + w.estimator.Estimate(agentText),
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.turns = append(w.turns, turn)
	w.tokens += turn.Tokens

	drop := 0
	for drop < len(w.turns) && (w.overTurns(len(w.turns)-drop) || w.tokens > w.maxTokens) {
		w.tokens -= w.turns[drop].Tokens
		drop++
	}
	if drop > 0 {
		w.turns = slices.Delete(w.turns, 0, drop)
	}
	return turn
}

func (w *Window) overTurns(n int) bool {
	return w.maxTurns > 0 && n > w.maxTurns
}

// Turns returns a copy of the window, oldest first.
func (w *Window) Turns() []domain.ConversationTurn {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.turns)
}

// TotalTokens returns the summed token estimate of the window.
func (w *Window) TotalTokens() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tokens
}

// Len returns the number of turns held.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.turns)
}

// Clear drops every turn.
func (w *Window) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.turns = nil
	w.tokens = 0
}

var _ domain.ConversationHistory = (*Window)(nil)
