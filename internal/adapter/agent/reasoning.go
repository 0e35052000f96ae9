package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"jomra/internal/domain"
)

// Recaller retrieves memories relevant to a query.
type Recaller interface {
	Recall(ctx context.Context, query string, topK int) ([]domain.MemoryItem, error)
}

// ChainOfThoughtAgent lays out explicit reasoning steps and then delegates
// the final answer to an inner question-answering agent.
type ChainOfThoughtAgent struct {
	*base
	qa     domain.Agent
	memory Recaller
	logger *slog.Logger
}

// NewChainOfThoughtAgent wraps qa. memory may be nil.
func NewChainOfThoughtAgent(qa domain.Agent, memory Recaller, logger *slog.Logger) *ChainOfThoughtAgent {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChainOfThoughtAgent{
		base:   newBase("chain_of_thought", "Chain-of-Thought Agent", 1500*time.Millisecond, domain.CapReasoning),
		qa:     qa,
		memory: memory,
		logger: logger,
	}
}

// Initialize initializes the inner agent; this agent is ready only if it is.
func (a *ChainOfThoughtAgent) Initialize(ctx context.Context) error {
	if err := a.qa.Initialize(ctx); err != nil {
		a.markDown("Not init")
		return err
	}
	a.markReady()
	return nil
}

func (a *ChainOfThoughtAgent) Process(ctx context.Context, ec *domain.ExecutionContext, input domain.AgentInput) (*domain.AgentResponse, error) {
	if err := a.checkReady(); err != nil {
		return nil, err
	}

	steps := a.reason(ctx, input.Text)

	var sb strings.Builder
	sb.WriteString("Thought process:\n")
	for i, s := range steps {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, s)
	}

	resp, err := a.qa.Process(ctx, ec, input)
	if err != nil {
		return nil, err
	}
	sb.WriteString("\nFinal Answer: ")
	if resp != nil {
		sb.WriteString(resp.Text)
	}

	return domain.NewResponse().
		Text(sb.String()).
		Confidence(0.95).
		Meta("steps", len(steps)).
		Build(), nil
}

func (a *ChainOfThoughtAgent) reason(ctx context.Context, query string) []string {
	if strings.ContainsAny(query, "+-*/") {
		return []string{
			"Identify mathematical operation in the query.",
			"Extract operands and operator.",
			"Calculate the result using the Calculator tool.",
		}
	}

	steps := []string{"Analyze query intent."}
	if a.memory != nil {
		recalled, err := a.memory.Recall(ctx, query, 2)
		if err != nil {
			a.logger.Warn("recall failed during reasoning", "error", err)
		}
		if len(recalled) > 0 {
			steps = append(steps, fmt.Sprintf("Found %d relevant context items in memory.", len(recalled)))
		}
	}
	return append(steps,
		"Retrieve relevant information from memory.",
		"Synthesize a response based on available data.",
	)
}

func (a *ChainOfThoughtAgent) Shutdown(context.Context) error {
	a.markDown("Not init")
	return nil
}

var _ domain.Agent = (*ChainOfThoughtAgent)(nil)
