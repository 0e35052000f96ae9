// Package supreme runs the supervising request loop: screen the input, enrich
// it from memory, route it through learned policy, then execute a bounded
// chain of agents.
package supreme

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"jomra/internal/domain"
	"jomra/internal/infra/tracer"
	"jomra/internal/usecase/eventbus"
)

// Config tunes routing and the bounded loop.
type Config struct {
	MaxSteps        int
	ConfidenceFloor float64
	RecallTopK      int
	SmoothingFactor float64
	InitialAccuracy float64

	DefaultAgent    string
	ArithmeticAgent string
	CoderAgent      string
	ReasoningAgent  string

	// PolicyKey is the situation looked up in the policy table.
	PolicyKey domain.PolicyKey
}

// DefaultConfig returns the stock routing settings.
func DefaultConfig() Config {
	return Config{
		MaxSteps:        5,
		ConfidenceFloor: 0.7,
		RecallTopK:      3,
		SmoothingFactor: 0.2,
		InitialAccuracy: 0.9,
		DefaultAgent:    "qa_agent",
		ArithmeticAgent: "tool_agent",
		CoderAgent:      "remote_agent",
		ReasoningAgent:  "chain_of_thought",
		PolicyKey:       domain.PolicyKey{Environment: "env_coordination", Complexity: "medium", PerfProfile: "high_perf"},
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.MaxSteps <= 0 {
		c.MaxSteps = d.MaxSteps
	}
	if c.ConfidenceFloor <= 0 {
		c.ConfidenceFloor = d.ConfidenceFloor
	}
	if c.RecallTopK < 0 {
		c.RecallTopK = 0
	}
	if c.DefaultAgent == "" {
		c.DefaultAgent = d.DefaultAgent
	}
	if c.PolicyKey == (domain.PolicyKey{}) {
		c.PolicyKey = d.PolicyKey
	}
}

// Memory is the slice of the memory store the orchestrator uses.
type Memory interface {
	Recall(ctx context.Context, query string, topK int) ([]domain.MemoryItem, error)
	Remember(ctx context.Context, userText, agentText string, importance float64, metadata map[string]any) (domain.MemoryItem, error)
}

// History is the conversation window.
type History interface {
	domain.ConversationHistory
	Append(userText, agentText string) domain.ConversationTurn
}

// AgentLookup resolves agent ids.
type AgentLookup interface {
	Get(id string) (domain.Agent, bool)
}

// Runner executes one agent under its time bound.
type Runner interface {
	RunSingle(ctx context.Context, ec *domain.ExecutionContext, input domain.AgentInput, a domain.Agent) *domain.AgentResponse
}

// PreferenceSource exposes learned preference weights.
type PreferenceSource interface {
	Categories() []string
	Get(category string) float64
}

// Deps holds injected dependencies. Agents, Runner and Screener are required.
type Deps struct {
	Screener    domain.Screener
	Agents      AgentLookup
	Runner      Runner
	Memory      Memory             // optional, nil = no enrichment or recording
	History     History            // optional
	Policy      domain.PolicyTable // optional, nil = heuristics only
	Preferences PreferenceSource   // optional
	Tools       domain.ToolRegistry
	APIClient   domain.APIClient
	Bus         domain.EventBus
	Logger      *slog.Logger
}

// Orchestrator is the supervising request loop.
type Orchestrator struct {
	cfg     Config
	deps    Deps
	tracker *PerformanceTracker
	logger  *slog.Logger
}

// New creates an Orchestrator.
func New(cfg Config, deps Deps) *Orchestrator {
	cfg.applyDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:     cfg,
		deps:    deps,
		tracker: NewPerformanceTracker(cfg.SmoothingFactor, cfg.InitialAccuracy),
		logger:  logger.With("component", "supreme"),
	}
}

// Tracker exposes the per-agent performance averages.
func (o *Orchestrator) Tracker() *PerformanceTracker { return o.tracker }

// Process handles one user request end to end. The returned response is never
// nil. A non-nil error is returned only when screening rejects the input; it
// wraps domain.ErrPolicyViolation.
func (o *Orchestrator) Process(ctx context.Context, input domain.AgentInput) (*domain.AgentResponse, error) {
	requestID := newRequestID()
	ctx = domain.ContextWithRequestID(ctx, requestID)
	ctx, span := tracer.StartSpan(ctx, "supreme.process",
		trace.WithAttributes(tracer.StringAttr("request.id", requestID)),
	)
	defer span.End()

	verdict := o.deps.Screener.Screen(input.Text)
	if !verdict.Safe {
		o.logger.WarnContext(ctx, "input rejected", "reason", verdict.Reason)
		eventbus.Emit(ctx, o.deps.Bus, domain.EventSecurityRejected, domain.SecurityRejectedPayload{
			Reason:     verdict.Reason,
			Confidence: verdict.Confidence,
			InputLen:   len(input.Text),
		})
		err := domain.NewSubSystemError("supreme", "Orchestrator.Process", domain.ErrPolicyViolation, verdict.Reason)
		tracer.RecordError(span, err)
		return domain.ErrorResponse("Security Violation: " + verdict.Reason), err
	}

	text := enrich(input.Text, o.recall(ctx, input.Text))
	ids := o.route(input.Text)
	span.SetAttributes(tracer.IntAttr("supreme.candidates", len(ids)))

	ec := o.executionContext(requestID)
	resp := o.run(ctx, ec, text, ids)
	if resp.IsSuccess() {
		o.record(ctx, input, resp)
		tracer.SetOK(span)
	}
	return resp, nil
}

func (o *Orchestrator) recall(ctx context.Context, query string) []domain.MemoryItem {
	if o.deps.Memory == nil || o.cfg.RecallTopK == 0 {
		return nil
	}
	items, err := o.deps.Memory.Recall(ctx, query, o.cfg.RecallTopK)
	if err != nil {
		o.logger.WarnContext(ctx, "memory recall failed", "error", err)
		return nil
	}
	return items
}

// run walks the candidates until the step limit, a confidence drop or the end
// of the list. Each success feeds its text into the next step.
func (o *Orchestrator) run(ctx context.Context, ec *domain.ExecutionContext, text string, ids []string) *domain.AgentResponse {
	var final *domain.AgentResponse
	confidence := 1.0
	steps := 0
	current := text

	for _, id := range ids {
		a, ok := o.deps.Agents.Get(id)
		if !ok {
			o.logger.DebugContext(ctx, "routed agent not registered", "agent", id)
			continue
		}
		if steps >= o.cfg.MaxSteps || confidence < o.cfg.ConfidenceFloor {
			o.logger.WarnContext(ctx, "escalation: confidence dropped or max steps reached",
				"steps", steps, "confidence", confidence)
			break
		}

		o.tracker.Seed(id, a.EstimatedLatency())
		start := time.Now()
		resp := o.deps.Runner.RunSingle(ctx, ec, domain.TextInput(current), a)
		latency := time.Since(start)
		steps++

		o.tracker.Observe(id, latency, resp.Confidence)
		eventbus.Emit(ctx, o.deps.Bus, domain.EventAgentRouted, domain.AgentRoutedPayload{
			AgentID:    id,
			Step:       steps,
			Status:     string(resp.Status),
			Confidence: resp.Confidence,
			LatencyMS:  latency.Milliseconds(),
		})

		if resp.IsSuccess() {
			final = resp
			confidence = resp.Confidence
			current = resp.Text
		}
	}

	if final == nil {
		return domain.ErrorResponse("Workflow failed")
	}
	return final
}

func (o *Orchestrator) record(ctx context.Context, input domain.AgentInput, resp *domain.AgentResponse) {
	if o.deps.Memory != nil {
		if _, err := o.deps.Memory.Remember(ctx, input.Text, resp.Text, resp.Confidence, input.Params()); err != nil {
			o.logger.WarnContext(ctx, "remember failed", "error", err)
		}
	}
	if o.deps.History != nil {
		o.deps.History.Append(input.Text, resp.Text)
	}
}

func (o *Orchestrator) executionContext(requestID string) *domain.ExecutionContext {
	state := domain.AppState{SessionID: requestID}
	if p := o.deps.Preferences; p != nil {
		state.Preferences = make(map[string]float64)
		for _, c := range p.Categories() {
			state.Preferences[c] = p.Get(c)
		}
	}
	b := domain.NewExecutionContext().
		AppState(state).
		Tools(o.deps.Tools).
		APIClient(o.deps.APIClient).
		Metadata(map[string]string{"request_id": requestID})
	if o.deps.History != nil {
		b = b.History(o.deps.History)
	}
	return b.Build()
}

func newRequestID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
