package domain

import (
	"context"
	"time"
)

// MemoryItem is one remembered interaction.
// Importance is fixed at construction; RelevanceScore is transient and
// never persisted.
type MemoryItem struct {
	ID             string         `json:"id"`
	UserText       string         `json:"user_text"`
	AgentText      string         `json:"agent_text"`
	Timestamp      time.Time      `json:"timestamp"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Embedding      []float32      `json:"-"`
	RelevanceScore float64        `json:"-"`

	importance float64
}

// NewMemoryItem builds a MemoryItem. Importance is clamped to [0,1].
func NewMemoryItem(id, userText, agentText string, ts time.Time, importance float64, metadata map[string]any) MemoryItem {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return MemoryItem{
		ID:         id,
		UserText:   userText,
		AgentText:  agentText,
		Timestamp:  ts,
		Metadata:   metadata,
		importance: ClampUnit(importance),
	}
}

// Importance returns the item's importance in [0,1].
func (m MemoryItem) Importance() float64 { return m.importance }

// PersistentStore is the long-term memory backend.
type PersistentStore interface {
	Insert(ctx context.Context, item MemoryItem) error
	// QueryRecent returns up to limit items, newest first.
	QueryRecent(ctx context.Context, limit int) ([]MemoryItem, error)
	// QueryPrioritized returns up to limit items newer than since or more
	// important than minImportance, ordered by importance then timestamp,
	// both descending.
	QueryPrioritized(ctx context.Context, since time.Time, minImportance float64, limit int) ([]MemoryItem, error)
	DeleteAll(ctx context.Context) error
	// DeleteOlderThan removes items older than cutoff whose importance is
	// below importanceBelow, returning the number removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time, importanceBelow float64) (int64, error)
	Close() error
}

// PreferenceStore persists learned per-category preference weights.
type PreferenceStore interface {
	GetPreference(ctx context.Context, key string) (float64, bool, error)
	SetPreference(ctx context.Context, key string, value float64) error
	DeletePreferences(ctx context.Context) error
}

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Name() string
}
