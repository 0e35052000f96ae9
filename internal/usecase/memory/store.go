// Package memory keeps a short-term buffer of recent interactions and a
// persistent long-term store ranked by similarity and recency.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"jomra/internal/domain"
	"jomra/internal/usecase/eventbus"
)

// Options tunes the memory store. Zero values take the defaults, except
// PersistThreshold.
type Options struct {
	ShortTermCapacity int
	// PersistThreshold is used as given, so 0 persists any item with positive
	// importance. Values outside [0,1] take the default.
	PersistThreshold    float64
	RecallWindow        time.Duration
	RecallMinImportance float64
	RecallCandidates    int
	QueueSize           int
	Ranker              Ranker
}

// DefaultOptions returns the stock tuning.
func DefaultOptions() Options {
	return Options{
		ShortTermCapacity:   10,
		PersistThreshold:    0.3,
		RecallWindow:        7 * 24 * time.Hour,
		RecallMinImportance: 0.7,
		RecallCandidates:    100,
		QueueSize:           64,
		Ranker:              DefaultRanker(),
	}
}

func (o *Options) applyDefaults() {
	d := DefaultOptions()
	if o.ShortTermCapacity <= 0 {
		o.ShortTermCapacity = d.ShortTermCapacity
	}
	if o.PersistThreshold < 0 || o.PersistThreshold > 1 {
		o.PersistThreshold = d.PersistThreshold
	}
	if o.RecallWindow <= 0 {
		o.RecallWindow = d.RecallWindow
	}
	if o.RecallMinImportance <= 0 {
		o.RecallMinImportance = d.RecallMinImportance
	}
	if o.RecallCandidates <= 0 {
		o.RecallCandidates = d.RecallCandidates
	}
	if o.QueueSize <= 0 {
		o.QueueSize = d.QueueSize
	}
	if o.Ranker == (Ranker{}) {
		o.Ranker = d.Ranker
	}
}

// Store is the two-tier memory. Short-term writes are synchronous; every
// persistent mutation goes through a single-consumer write queue, so the
// two tiers are only eventually consistent.
type Store struct {
	opts     Options
	persist  domain.PersistentStore
	prefDB   domain.PreferenceStore
	embedder domain.Embedder
	queue    *writeQueue
	prefs    *Preferences
	bus      domain.EventBus
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	shortTerm []domain.MemoryItem
}

// New creates a Store over persist. When persist also implements
// domain.PreferenceStore, learned preferences are saved there. bus may be nil.
func New(persist domain.PersistentStore, embedder domain.Embedder, opts Options, bus domain.EventBus, logger *slog.Logger) *Store {
	opts.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	prefDB, _ := persist.(domain.PreferenceStore)
	return &Store{
		opts:      opts,
		persist:   persist,
		prefDB:    prefDB,
		embedder:  embedder,
		queue:     newWriteQueue(opts.QueueSize, logger),
		prefs:     newPreferences(),
		bus:       bus,
		logger:    logger,
		now:       time.Now,
		shortTerm: make([]domain.MemoryItem, 0, opts.ShortTermCapacity),
	}
}

// WarmUp loads preferences and seeds the short-term buffer with the most
// recent persisted items, oldest first. Failures are logged.
func (s *Store) WarmUp(ctx context.Context) {
	s.prefs.load(ctx, s.prefDB, s.logger)

	recent, err := s.persist.QueryRecent(ctx, s.opts.ShortTermCapacity)
	if err != nil {
		s.logger.Warn("memory warm-up failed", "error", err)
		return
	}
	slices.Reverse(recent)

	s.mu.Lock()
	s.shortTerm = append(s.shortTerm[:0], recent...)
	s.mu.Unlock()
	s.logger.Debug("memory warmed up", "items", len(recent))
}

// Remember records one interaction. The item always enters the short-term
// buffer; it is persisted asynchronously when its importance exceeds the
// persist threshold.
func (s *Store) Remember(ctx context.Context, userText, agentText string, importance float64, metadata map[string]any) (domain.MemoryItem, error) {
	item := domain.NewMemoryItem(uuid.NewString(), userText, agentText, s.now(), importance, metadata)

	if s.embedder != nil {
		vec, err := s.embedder.Encode(ctx, userText)
		if err != nil {
			s.logger.Warn("embedding failed, storing without vector", "id", item.ID, "error", err)
		} else {
			item.Embedding = vec
		}
	}

	s.mu.Lock()
	s.shortTerm = append(s.shortTerm, item)
	if over := len(s.shortTerm) - s.opts.ShortTermCapacity; over > 0 {
		s.shortTerm = slices.Delete(s.shortTerm, 0, over)
	}
	s.mu.Unlock()

	persisted := item.Importance() > s.opts.PersistThreshold
	if persisted {
		if err := s.queue.enqueue("insert", func(ctx context.Context) error {
			return s.persist.Insert(ctx, item)
		}); err != nil {
			return item, fmt.Errorf("memory: remember: %w", err)
		}
	}

	if cat, v, ok := s.prefs.observe(item.Metadata); ok {
		s.savePreference(cat, v)
	}

	eventbus.Emit(ctx, s.bus, domain.EventMemoryStored, domain.MemoryStoredPayload{
		ID:         item.ID,
		Importance: item.Importance(),
		Persisted:  persisted,
	})
	return item, nil
}

func (s *Store) savePreference(category string, v float64) {
	if s.prefDB == nil {
		return
	}
	err := s.queue.enqueue("preference", func(ctx context.Context) error {
		return s.prefDB.SetPreference(ctx, prefKeyPrefix+category, v)
	})
	if err != nil {
		s.logger.Warn("preference not saved", "category", category, "error", err)
	}
}

// Recall returns up to topK persisted memories most relevant to query.
// Candidates are the recent or important items only; a store failure yields
// an empty result. Writes queued before the call are visible to it.
func (s *Store) Recall(ctx context.Context, query string, topK int) ([]domain.MemoryItem, error) {
	if topK <= 0 {
		return nil, nil
	}
	if err := s.Flush(ctx); err != nil {
		s.logger.Debug("recall without write barrier", "error", err)
	}
	now := s.now()
	candidates, err := s.persist.QueryPrioritized(ctx, now.Add(-s.opts.RecallWindow), s.opts.RecallMinImportance, s.opts.RecallCandidates)
	if err != nil {
		s.logger.Warn("recall query failed", "error", err)
		return nil, nil
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	var q []float32
	if s.embedder != nil {
		q, err = s.embedder.Encode(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("memory: recall: %w: %v", domain.ErrEmbeddingFailed, err)
		}
	}
	return s.opts.Ranker.Rank(q, candidates, now, topK), nil
}

// ShortTerm returns a copy of the short-term buffer, oldest first.
func (s *Store) ShortTerm() []domain.MemoryItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.shortTerm)
}

// Preferences exposes the learned preference weights.
func (s *Store) Preferences() *Preferences { return s.prefs }

// ClearAll empties the short-term buffer and preferences immediately and
// waits for the persistent wipe to run.
func (s *Store) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	s.shortTerm = s.shortTerm[:0]
	s.mu.Unlock()
	s.prefs.reset()

	err := s.queue.do(ctx, "clear", func(ctx context.Context) error {
		if err := s.persist.DeleteAll(ctx); err != nil {
			return err
		}
		if s.prefDB != nil {
			return s.prefDB.DeletePreferences(ctx)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("memory: clear: %w", err)
	}
	s.logger.Info("memory cleared")
	eventbus.Emit(ctx, s.bus, domain.EventMemoryCleared, nil)
	return nil
}

// Prune removes persisted items older than maxAge whose importance is below
// importanceBelow. It runs on the write queue.
func (s *Store) Prune(ctx context.Context, maxAge time.Duration, importanceBelow float64) (int64, error) {
	cutoff := s.now().Add(-maxAge)
	var removed int64
	err := s.queue.do(ctx, "prune", func(ctx context.Context) error {
		n, err := s.persist.DeleteOlderThan(ctx, cutoff, importanceBelow)
		removed = n
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("memory: prune: %w", err)
	}
	eventbus.Emit(ctx, s.bus, domain.EventMemoryPruned, map[string]any{"removed": removed})
	return removed, nil
}

// Flush waits until every write queued so far has run.
func (s *Store) Flush(ctx context.Context) error {
	return s.queue.do(ctx, "flush", func(context.Context) error { return nil })
}

// Close drains the write queue. The persistent store stays open; its owner
// closes it.
func (s *Store) Close(ctx context.Context) error {
	return s.queue.close(ctx)
}
