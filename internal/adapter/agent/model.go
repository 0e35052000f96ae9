package agent

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const (
	maxSeqLength = 128
	vocabSize    = 30000
)

// Model is an opaque local inference runtime. Infer maps token ids to a
// fixed-length output vector; the agent only reads its maximum.
type Model interface {
	Name() string
	Load(ctx context.Context) error
	Infer(ctx context.Context, tokens []int32) ([]float32, error)
	Close() error
}

// Tokenize lower-cases text, drops everything but ASCII letters, digits and
// whitespace, then hashes each word into the vocabulary. At most
// maxSeqLength tokens are returned.
func Tokenize(text string) []int32 {
	cleaned := strings.Map(func(r rune) rune {
		r = unicode.ToLower(r)
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', unicode.IsSpace(r):
			return r
		}
		return -1
	}, text)

	words := strings.Fields(cleaned)
	if len(words) > maxSeqLength {
		words = words[:maxSeqLength]
	}
	tokens := make([]int32, len(words))
	for i, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		tokens[i] = int32(h.Sum32() % vocabSize)
	}
	return tokens
}

// HashModel is a deterministic stand-in runtime: it produces a maxSeqLength
// logit vector derived from the token ids. It lets the QA agent run without
// a model file.
type HashModel struct {
	name   string
	loaded bool
}

// NewHashModel returns an unloaded HashModel.
func NewHashModel(name string) *HashModel {
	if name == "" {
		name = "hash-qa"
	}
	return &HashModel{name: name}
}

func (m *HashModel) Name() string { return m.name }

func (m *HashModel) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.loaded = true
	return nil
}

func (m *HashModel) Infer(ctx context.Context, tokens []int32) ([]float32, error) {
	if !m.loaded {
		return nil, fmt.Errorf("model %s not loaded", m.name)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]float32, maxSeqLength)
	for i, tok := range tokens {
		if i >= maxSeqLength {
			break
		}
		// Spread each token id over [-2, 4).
		out[i] = float32(math.Mod(float64(tok)*0.618, 6)) - 2
	}
	return out, nil
}

func (m *HashModel) Close() error {
	m.loaded = false
	return nil
}

// sigmoid maps the maximum logit to a confidence in (0,1).
func sigmoid(x float32) float64 {
	return 1 / (1 + math.Exp(-float64(x)))
}

func maxLogit(out []float32) float32 {
	best := float32(-1)
	for _, v := range out {
		if v > best {
			best = v
		}
	}
	return best
}
