package domain

import (
	"context"
	"time"
)

// Capability is a skill an agent advertises to the selector.
type Capability string

const (
	CapQuestionAnswering     Capability = "QUESTION_ANSWERING"
	CapReasoning             Capability = "REASONING"
	CapToolUsage             Capability = "TOOL_USAGE"
	CapPlanning              Capability = "PLANNING"
	CapReinforcementLearning Capability = "REINFORCEMENT_LEARNING"
	CapVision                Capability = "VISION"
	CapAudio                 Capability = "AUDIO"
	CapMemory                Capability = "MEMORY"
	CapAPIIntegration        Capability = "API_INTEGRATION"
)

// HealthState is the coarse health of an agent.
type HealthState string

const (
	HealthHealthy      HealthState = "HEALTHY"
	HealthDegraded     HealthState = "DEGRADED"
	HealthUnhealthy    HealthState = "UNHEALTHY"
	HealthInitializing HealthState = "INITIALIZING"
)

// HealthStatus is a snapshot of an agent's health.
type HealthStatus struct {
	State   HealthState        `json:"state"`
	Reason  string             `json:"reason,omitempty"`
	Metrics map[string]float64 `json:"metrics,omitempty"`
}

// Healthy returns a HEALTHY status with no reason.
func Healthy() HealthStatus { return HealthStatus{State: HealthHealthy} }

// Agent is a pluggable processing unit the orchestrator can route requests to.
// Implementations guard their own health state; callers only read it.
type Agent interface {
	ID() string
	Name() string
	// Capabilities returns the agent's capabilities in declaration order.
	Capabilities() []Capability
	Initialize(ctx context.Context) error
	Process(ctx context.Context, ec *ExecutionContext, input AgentInput) (*AgentResponse, error)
	Shutdown(ctx context.Context) error
	Health() HealthStatus
	EstimatedLatency() time.Duration
}

// HasCapability reports whether a advertises c.
func HasCapability(a Agent, c Capability) bool {
	for _, have := range a.Capabilities() {
		if have == c {
			return true
		}
	}
	return false
}

// InputKind tags the modality of an AgentInput.
type InputKind string

const (
	InputText     InputKind = "TEXT"
	InputVoice    InputKind = "VOICE"
	InputImage    InputKind = "IMAGE"
	InputFeedback InputKind = "FEEDBACK"
	InputSystem   InputKind = "SYSTEM"
)

// AgentInput is an immutable request handed to an agent.
type AgentInput struct {
	Text      string
	Kind      InputKind
	CreatedAt time.Time
	params    map[string]any
}

// NewAgentInput builds an AgentInput, copying params.
func NewAgentInput(text string, kind InputKind, params map[string]any) AgentInput {
	if kind == "" {
		kind = InputText
	}
	return AgentInput{
		Text:      text,
		Kind:      kind,
		CreatedAt: time.Now(),
		params:    copyParams(params),
	}
}

// TextInput is shorthand for a TEXT input without params.
func TextInput(text string) AgentInput {
	return NewAgentInput(text, InputText, nil)
}

// Param returns a single parameter value.
func (in AgentInput) Param(key string) (any, bool) {
	v, ok := in.params[key]
	return v, ok
}

// Params returns a copy of the input parameters.
func (in AgentInput) Params() map[string]any {
	return copyParams(in.params)
}

func copyParams(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// AppState is the read-only application snapshot carried by an ExecutionContext.
type AppState struct {
	UserID      string            `json:"user_id,omitempty"`
	SessionID   string            `json:"session_id,omitempty"`
	Locale      string            `json:"locale,omitempty"`
	Preferences map[string]float64 `json:"preferences,omitempty"`
}
