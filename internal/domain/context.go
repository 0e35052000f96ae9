package domain

import (
	"context"
	"time"
)

type ctxKey string

const requestCtxKey ctxKey = "request_id"

// ContextWithRequestID returns a new context carrying the request ID (ULID).
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestCtxKey, requestID)
}

// RequestIDFromContext extracts the request ID from the context.
// Returns empty string if not set.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestCtxKey).(string); ok {
		return v
	}
	return ""
}

// APIClient is the external completion service an agent may call.
type APIClient interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// ConversationTurn is one user/agent exchange. Tokens is computed once when
// the turn is created.
type ConversationTurn struct {
	UserText  string    `json:"user_text"`
	AgentText string    `json:"agent_text"`
	Timestamp time.Time `json:"timestamp"`
	Tokens    int       `json:"tokens"`
}

// ConversationHistory is a read view over the recent conversation.
type ConversationHistory interface {
	Turns() []ConversationTurn
}

// ExecutionContext is the per-request bundle shared read-only by every agent
// that takes part in a turn. Build it with NewExecutionContext.
type ExecutionContext struct {
	state    AppState
	tools    ToolRegistry
	api      APIClient
	history  ConversationHistory
	training bool
	metadata map[string]string
}

// The getters are nil-safe: a nil *ExecutionContext reads as empty.

func (ec *ExecutionContext) AppState() AppState {
	if ec == nil {
		return AppState{}
	}
	return ec.state
}

func (ec *ExecutionContext) Tools() ToolRegistry {
	if ec == nil {
		return nil
	}
	return ec.tools
}

func (ec *ExecutionContext) APIClient() APIClient {
	if ec == nil {
		return nil
	}
	return ec.api
}

func (ec *ExecutionContext) History() ConversationHistory {
	if ec == nil {
		return nil
	}
	return ec.history
}

func (ec *ExecutionContext) Training() bool {
	return ec != nil && ec.training
}

func (ec *ExecutionContext) Metadata(key string) (string, bool) {
	if ec == nil {
		return "", false
	}
	v, ok := ec.metadata[key]
	return v, ok
}

// ExecutionContextBuilder assembles an ExecutionContext.
type ExecutionContextBuilder struct {
	ec ExecutionContext
}

// NewExecutionContext starts a builder.
func NewExecutionContext() *ExecutionContextBuilder {
	return &ExecutionContextBuilder{}
}

func (b *ExecutionContextBuilder) AppState(s AppState) *ExecutionContextBuilder {
	b.ec.state = s
	return b
}

func (b *ExecutionContextBuilder) Tools(r ToolRegistry) *ExecutionContextBuilder {
	b.ec.tools = r
	return b
}

func (b *ExecutionContextBuilder) APIClient(c APIClient) *ExecutionContextBuilder {
	b.ec.api = c
	return b
}

func (b *ExecutionContextBuilder) History(h ConversationHistory) *ExecutionContextBuilder {
	b.ec.history = h
	return b
}

func (b *ExecutionContextBuilder) Training(on bool) *ExecutionContextBuilder {
	b.ec.training = on
	return b
}

func (b *ExecutionContextBuilder) Metadata(m map[string]string) *ExecutionContextBuilder {
	b.ec.metadata = m
	return b
}

// Build returns the finished context. Maps are copied so later mutation of
// the builder's inputs does not leak into the context.
func (b *ExecutionContextBuilder) Build() *ExecutionContext {
	ec := b.ec
	meta := make(map[string]string, len(b.ec.metadata))
	for k, v := range b.ec.metadata {
		meta[k] = v
	}
	ec.metadata = meta
	if b.ec.state.Preferences != nil {
		prefs := make(map[string]float64, len(b.ec.state.Preferences))
		for k, v := range b.ec.state.Preferences {
			prefs[k] = v
		}
		ec.state.Preferences = prefs
	}
	return &ec
}
