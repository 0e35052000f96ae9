package memory

import (
	"math"
	"sort"
	"time"

	"jomra/internal/domain"
)

// Ranker blends embedding similarity with recency.
type Ranker struct {
	SimilarityWeight float64
	RecencyWeight    float64
	// RecencyHorizon is the age at which the recency factor reaches zero.
	RecencyHorizon time.Duration
}

// DefaultRanker weighs similarity 0.7 and recency 0.3 over 30 days.
func DefaultRanker() Ranker {
	return Ranker{SimilarityWeight: 0.7, RecencyWeight: 0.3, RecencyHorizon: 30 * 24 * time.Hour}
}

// Score returns the relevance of item to the query embedding at now.
func (r Ranker) Score(query []float32, item domain.MemoryItem, now time.Time) float64 {
	recency := 0.0
	if r.RecencyHorizon > 0 {
		recency = math.Max(0, 1-float64(now.Sub(item.Timestamp))/float64(r.RecencyHorizon))
	}
	return r.SimilarityWeight*Cosine(query, item.Embedding) + r.RecencyWeight*recency
}

// Rank scores items in place, sorts them by descending score (stable) and
// returns at most topK.
func (r Ranker) Rank(query []float32, items []domain.MemoryItem, now time.Time, topK int) []domain.MemoryItem {
	for i := range items {
		items[i].RelevanceScore = r.Score(query, items[i], now)
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].RelevanceScore > items[j].RelevanceScore
	})
	if topK < 0 {
		topK = 0
	}
	if len(items) > topK {
		items = items[:topK]
	}
	return items
}

// Cosine returns the cosine similarity of a and b over their common prefix.
// Empty or zero-norm vectors give 0.
func Cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
