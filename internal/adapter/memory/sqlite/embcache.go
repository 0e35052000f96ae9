package sqlite

import (
	"fmt"

	"github.com/dgraph-io/ristretto"
)

// embeddingCache holds decoded embeddings keyed by memory id. Embeddings are
// written once and never change for a given id, so entries never go stale.
type embeddingCache struct {
	c *ristretto.Cache
}

func newEmbeddingCache(maxItems int) (*embeddingCache, error) {
	if maxItems <= 0 {
		return &embeddingCache{}, nil
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: int64(maxItems) * 10,
		MaxCost:     int64(maxItems),
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &embeddingCache{c: c}, nil
}

func (e *embeddingCache) get(id string) ([]float32, bool) {
	if e.c == nil {
		return nil, false
	}
	v, ok := e.c.Get(id)
	if !ok {
		return nil, false
	}
	vec, ok := v.([]float32)
	return vec, ok
}

func (e *embeddingCache) put(id string, vec []float32) {
	if e.c == nil || vec == nil {
		return
	}
	e.c.Set(id, vec, 1)
}

// wait blocks until buffered writes are applied.
func (e *embeddingCache) wait() {
	if e.c != nil {
		e.c.Wait()
	}
}

func (e *embeddingCache) clear() {
	if e.c != nil {
		e.c.Clear()
	}
}

func (e *embeddingCache) close() {
	if e.c != nil {
		e.c.Close()
	}
}
