package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	EventAgentRouted      EventType = "agent.routed"
	EventAgentError       EventType = "agent.error"
	EventAgentRegistered  EventType = "agent.registered"
	EventMemoryStored     EventType = "memory.stored"
	EventMemoryCleared    EventType = "memory.cleared"
	EventMemoryPruned     EventType = "memory.pruned"
	EventSecurityRejected EventType = "security.rejected"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// AgentRoutedPayload is carried by EventAgentRouted.
type AgentRoutedPayload struct {
	AgentID    string  `json:"agent_id"`
	Step       int     `json:"step"`
	Status     string  `json:"status"`
	Confidence float64 `json:"confidence"`
	LatencyMS  int64   `json:"latency_ms"`
}

// AgentErrorPayload is carried by EventAgentError.
type AgentErrorPayload struct {
	AgentID string `json:"agent_id"`
	Error   string `json:"error"`
}

// MemoryStoredPayload is carried by EventMemoryStored.
type MemoryStoredPayload struct {
	ID         string  `json:"id"`
	Importance float64 `json:"importance"`
	Persisted  bool    `json:"persisted"`
}

// SecurityRejectedPayload is carried by EventSecurityRejected.
type SecurityRejectedPayload struct {
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
	InputLen   int     `json:"input_len"`
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for domain events.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}

// NewEvent marshals payload into an Event stamped with the current time and
// the request id carried by ctx.
func NewEvent(ctx context.Context, typ EventType, payload any) Event {
	ev := Event{Type: typ, Timestamp: time.Now(), RequestID: RequestIDFromContext(ctx)}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			ev.Payload = raw
		}
	}
	return ev
}
