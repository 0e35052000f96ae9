package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"jomra/internal/adapter/embedding"
	"jomra/internal/adapter/memory/inmem"
	"jomra/internal/adapter/memory/sqlite"
	"jomra/internal/domain"
	"jomra/internal/infra/config"
	"jomra/internal/infra/logger"
	"jomra/internal/usecase/conversation"
	"jomra/internal/usecase/memory"
)

// memoryComponents holds the two-tier memory and the conversation window.
type memoryComponents struct {
	Persist  domain.PersistentStore
	Embedder domain.Embedder
	Store    *memory.Store
	Pruner   *memory.Pruner // nil when pruning is disabled
	Window   *conversation.Window
}

func initPersistence(cfg config.MemoryConfig, log *slog.Logger) (domain.PersistentStore, error) {
	switch cfg.Backend {
	case "inmem":
		return inmem.New(), nil
	case "sqlite", "":
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("create memory dir: %w", err)
		}
		store, err := sqlite.New(filepath.Join(cfg.DataDir, "memory.db"), log,
			sqlite.WithEmbeddingCache(cfg.EmbeddingCacheSize))
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown memory backend %q", cfg.Backend)
	}
}

func initEmbedder(cfg config.EmbeddingConfig) (domain.Embedder, error) {
	switch cfg.Provider {
	case "hash", "":
		return embedding.NewCachedEmbedder(embedding.NewHashEmbedder(cfg.Dimensions), cfg.CacheSize), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

func initWindow(cfg config.ConversationConfig, log *slog.Logger) *conversation.Window {
	var est conversation.Estimator
	if cfg.Estimator == "tiktoken" {
		tk, err := conversation.NewTiktokenEstimator(cfg.Encoding)
		if err != nil {
			log.Warn("tiktoken unavailable, counting characters", "encoding", cfg.Encoding, "error", err)
		} else {
			est = tk
		}
	}
	return conversation.NewWindow(cfg.MaxTurns, cfg.MaxTokens, est)
}

// initMemory opens the persistent backend, builds the memory store, warms the
// short-term buffer and starts the pruner.
func initMemory(ctx context.Context, cfg *config.Config, bus domain.EventBus, log *slog.Logger) (*memoryComponents, error) {
	persist, err := initPersistence(cfg.Memory, log)
	if err != nil {
		return nil, err
	}
	embedder, err := initEmbedder(cfg.Embedding)
	if err != nil {
		persist.Close()
		return nil, err
	}

	mc := cfg.Memory
	store := memory.New(persist, embedder, memory.Options{
		ShortTermCapacity:   mc.ShortTermCapacity,
		PersistThreshold:    mc.RetentionThreshold,
		RecallWindow:        mc.RecallWindow,
		RecallMinImportance: mc.RecallImportance,
		RecallCandidates:    mc.RecallCandidates,
		QueueSize:           mc.WriteQueueSize,
		Ranker: memory.Ranker{
			SimilarityWeight: mc.SimilarityWeight,
			RecencyWeight:    1 - mc.SimilarityWeight,
			RecencyHorizon:   mc.RecencyHorizon,
		},
	}, bus, logger.Component(log, "memory"))
	store.WarmUp(ctx)

	comp := &memoryComponents{
		Persist:  persist,
		Embedder: embedder,
		Store:    store,
		Window:   initWindow(cfg.Conversation, log),
	}

	if mc.Prune.Enabled {
		pruner, err := memory.NewPruner(store, memory.PrunerOptions{
			Schedule:        mc.Prune.Schedule,
			MaxAge:          mc.Prune.MaxAge,
			ImportanceBelow: mc.Prune.ImportanceBelow,
		}, logger.Component(log, "pruner"))
		if err != nil {
			store.Close(ctx)
			persist.Close()
			return nil, err
		}
		pruner.Start(ctx)
		comp.Pruner = pruner
	}

	log.Info("memory ready",
		"backend", mc.Backend,
		"embedder", embedder.Name(),
		"short_term", len(store.ShortTerm()),
		"prune", mc.Prune.Enabled,
	)
	return comp, nil
}

// close stops the pruner, drains pending writes and closes the backend.
func (m *memoryComponents) close(ctx context.Context, log *slog.Logger) {
	if m.Pruner != nil {
		m.Pruner.Stop()
	}
	if err := m.Store.Close(ctx); err != nil {
		log.Warn("memory drain incomplete", "error", err)
	}
	if err := m.Persist.Close(); err != nil {
		log.Warn("memory backend close failed", "error", err)
	}
}
