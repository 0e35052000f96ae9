// Package inmem provides a process-local memory backend used when no data
// directory is configured and in tests.
package inmem

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"jomra/internal/domain"
)

// Store implements domain.PersistentStore and domain.PreferenceStore.
type Store struct {
	mu     sync.RWMutex
	items  map[string]domain.MemoryItem
	prefs  map[string]float64
	closed bool
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		items: make(map[string]domain.MemoryItem),
		prefs: make(map[string]float64),
	}
}

func (s *Store) Insert(_ context.Context, item domain.MemoryItem) error {
	if item.ID == "" {
		return fmt.Errorf("%w: insert: empty id", domain.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrMemoryClosed
	}
	item.RelevanceScore = 0
	s.items[item.ID] = item
	return nil
}

func (s *Store) QueryRecent(_ context.Context, limit int) ([]domain.MemoryItem, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, domain.ErrMemoryClosed
	}

	out := s.snapshot(func(domain.MemoryItem) bool { return true })
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return truncate(out, limit), nil
}

func (s *Store) QueryPrioritized(_ context.Context, since time.Time, minImportance float64, limit int) ([]domain.MemoryItem, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, domain.ErrMemoryClosed
	}

	out := s.snapshot(func(it domain.MemoryItem) bool {
		return it.Timestamp.After(since) || it.Importance() > minImportance
	})
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Importance() != out[j].Importance() {
			return out[i].Importance() > out[j].Importance()
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return truncate(out, limit), nil
}

func (s *Store) DeleteAll(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.items)
	return nil
}

func (s *Store) DeleteOlderThan(_ context.Context, cutoff time.Time, importanceBelow float64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, it := range s.items {
		if it.Timestamp.Before(cutoff) && it.Importance() < importanceBelow {
			delete(s.items, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) GetPreference(_ context.Context, key string) (float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.prefs[key]
	return v, ok, nil
}

func (s *Store) SetPreference(_ context.Context, key string, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[key] = value
	return nil
}

func (s *Store) DeletePreferences(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.prefs)
	return nil
}

// Close marks the store closed. Subsequent writes and queries fail.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Len reports the number of stored items.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *Store) snapshot(keep func(domain.MemoryItem) bool) []domain.MemoryItem {
	out := make([]domain.MemoryItem, 0, len(s.items))
	for _, it := range s.items {
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}

func truncate(items []domain.MemoryItem, limit int) []domain.MemoryItem {
	if len(items) > limit {
		return items[:limit]
	}
	return items
}

var (
	_ domain.PersistentStore = (*Store)(nil)
	_ domain.PreferenceStore = (*Store)(nil)
)
