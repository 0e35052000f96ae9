package domain

import (
	"context"
	"time"
)

// AuditEventType classifies audit log entries.
type AuditEventType string

const (
	AuditSecurityRejected AuditEventType = "security_rejected"
	AuditMemoryClear      AuditEventType = "memory_clear"
	AuditMemoryPrune      AuditEventType = "memory_prune"
	AuditAgentFailure     AuditEventType = "agent_failure"
)

// AuditEvent represents a single auditable action.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      AuditEventType    `json:"type"`
	Detail    map[string]string `json:"detail"`

	RequestID string `json:"request_id,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
}

// AuditLogger writes audit events to a persistent log.
type AuditLogger interface {
	Log(ctx context.Context, event AuditEvent) error
	Close() error
}
