package agent

import (
	"context"
	"time"

	"jomra/internal/domain"
)

// PlanningAgent turns a goal into a fixed four-step plan.
type PlanningAgent struct {
	*base
}

func NewPlanningAgent() *PlanningAgent {
	return &PlanningAgent{
		base: newBase("planning", "Planning Agent", 800*time.Millisecond, domain.CapPlanning),
	}
}

func (a *PlanningAgent) Initialize(context.Context) error {
	a.markReady()
	return nil
}

func (a *PlanningAgent) Process(_ context.Context, _ *domain.ExecutionContext, input domain.AgentInput) (*domain.AgentResponse, error) {
	if err := a.checkReady(); err != nil {
		return nil, err
	}
	plan := "Goal: " + input.Text + "\n\nPlan:\n" +
		"1. Analyze objective requirements.\n" +
		"2. Decompose into manageable sub-tasks.\n" +
		"3. Execute sub-tasks sequentially.\n" +
		"4. Verify results against success criteria."
	return domain.Success(plan, 0.85), nil
}

func (a *PlanningAgent) Shutdown(context.Context) error {
	a.markDown("shut down")
	return nil
}

var _ domain.Agent = (*PlanningAgent)(nil)
