package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"jomra/internal/domain"
)

// QAAgent answers questions with a local model.
type QAAgent struct {
	*base
	model  Model
	logger *slog.Logger
}

// NewQAAgent creates the question-answering agent backed by model.
func NewQAAgent(model Model, logger *slog.Logger) *QAAgent {
	if logger == nil {
		logger = slog.Default()
	}
	return &QAAgent{
		base: newBase("qa_agent", "Question Answering Agent", 100*time.Millisecond,
			domain.CapQuestionAnswering, domain.CapReasoning),
		model:  model,
		logger: logger,
	}
}

func (a *QAAgent) Initialize(ctx context.Context) error {
	if err := a.model.Load(ctx); err != nil {
		a.markDown("model load failed")
		return domain.NewAgentError(domain.KindModelLoadFailed, "load "+a.model.Name(), err)
	}
	a.markReady()
	a.logger.Debug("agent initialized", "agent", a.ID(), "model", a.model.Name())
	return nil
}

func (a *QAAgent) Process(ctx context.Context, _ *domain.ExecutionContext, input domain.AgentInput) (*domain.AgentResponse, error) {
	if err := a.checkReady(); err != nil {
		return nil, err
	}
	query := input.Text
	if strings.TrimSpace(query) == "" {
		return domain.ErrorResponse("Empty input"), nil
	}

	tokens := Tokenize(query)
	out, err := a.model.Infer(ctx, tokens)
	if err != nil {
		if ctx.Err() != nil {
			return nil, domain.NewAgentError(domain.KindTimeout, "inference cancelled", ctx.Err())
		}
		return nil, domain.NewAgentError(domain.KindInferenceError, "Failed to process query", err)
	}

	answer := fmt.Sprintf("Based on my analysis of your question: \"%s\", I've generated a response using the %s model.", query, a.model.Name())
	return domain.NewResponse().
		Text(answer).
		Confidence(sigmoid(maxLogit(out))).
		Meta("model", a.model.Name()).
		Meta("tokens", len(tokens)).
		Build(), nil
}

func (a *QAAgent) Shutdown(context.Context) error {
	a.markDown("shut down")
	return a.model.Close()
}

var _ domain.Agent = (*QAAgent)(nil)
