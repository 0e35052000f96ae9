// Package embedding provides text encoders for memory ranking.
package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"jomra/internal/domain"
)

// HashEmbedder is a deterministic, dependency-free encoder. Each lower-cased
// word seeds a pseudo-random unit direction; the text vector is the
// normalised sum of its word directions, so texts sharing words have a
// positive cosine similarity.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder returns an encoder producing dims-dimensional vectors.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 128
	}
	return &HashEmbedder{dims: dims}
}

// Encode implements domain.Embedder. Text without any word characters
// yields the zero vector.
func (h *HashEmbedder) Encode(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, h.dims)
	for _, word := range words(text) {
		seed := wordSeed(word)
		for i := range vec {
			seed = seed*6364136223846793005 + 1442695040888963407
			vec[i] += float32(int64(seed)) / float32(math.MaxInt64)
		}
	}
	normalize(vec)
	return vec, nil
}

func (h *HashEmbedder) Dimensions() int { return h.dims }
func (h *HashEmbedder) Name() string    { return "hash" }

func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func wordSeed(w string) uint64 {
	f := fnv.New64a()
	f.Write([]byte(w))
	return f.Sum64()
}

func normalize(v []float32) {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= inv
	}
}

var _ domain.Embedder = (*HashEmbedder)(nil)
