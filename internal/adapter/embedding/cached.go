package embedding

import (
	"container/list"
	"context"
	"hash/fnv"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"jomra/internal/domain"
)

type lruEntry struct {
	key uint64
	vec []float32
}

// CachedEmbedder wraps a domain.Embedder with an LRU keyed by text hash.
// Concurrent misses for the same text share one inner call.
type CachedEmbedder struct {
	inner   domain.Embedder
	maxSize int
	flight  singleflight.Group

	mu    sync.Mutex
	cache map[uint64]*list.Element
	order *list.List // most-recently-used at back
}

// NewCachedEmbedder wraps inner with an LRU of maxSize entries.
// If maxSize <= 0, inner is returned directly.
func NewCachedEmbedder(inner domain.Embedder, maxSize int) domain.Embedder {
	if maxSize <= 0 {
		return inner
	}
	return &CachedEmbedder{
		inner:   inner,
		maxSize: maxSize,
		cache:   make(map[uint64]*list.Element, maxSize),
		order:   list.New(),
	}
}

// Encode implements domain.Embedder.
func (c *CachedEmbedder) Encode(ctx context.Context, text string) ([]float32, error) {
	key := hashText(text)

	c.mu.Lock()
	if elem, ok := c.cache[key]; ok {
		c.order.MoveToBack(elem)
		vec := elem.Value.(*lruEntry).vec
		c.mu.Unlock()
		return vec, nil
	}
	c.mu.Unlock()

	v, err, _ := c.flight.Do(strconv.FormatUint(key, 16), func() (any, error) {
		vec, err := c.inner.Encode(ctx, text)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.put(key, vec)
		c.mu.Unlock()
		return vec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]float32), nil
}

func (c *CachedEmbedder) Dimensions() int { return c.inner.Dimensions() }
func (c *CachedEmbedder) Name() string    { return c.inner.Name() }

// Len reports the number of cached vectors.
func (c *CachedEmbedder) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Purge drops every cached vector.
func (c *CachedEmbedder) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.cache)
	c.order.Init()
}

func hashText(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}

// put inserts key/vec, evicting the LRU entry at capacity. Caller holds c.mu.
func (c *CachedEmbedder) put(key uint64, vec []float32) {
	if elem, exists := c.cache[key]; exists {
		c.order.MoveToBack(elem)
		elem.Value.(*lruEntry).vec = vec
		return
	}

	if c.order.Len() >= c.maxSize {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.cache, oldest.Value.(*lruEntry).key)
	}

	c.cache[key] = c.order.PushBack(&lruEntry{key: key, vec: vec})
}

var _ domain.Embedder = (*CachedEmbedder)(nil)
