package memory

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"jomra/internal/domain"
)

const (
	defaultPreference = 0.5
	preferenceStep    = 0.1
	prefKeyPrefix     = "pref_"
)

// defaultCategories are loaded at start-up.
var defaultCategories = []string{"language", "vision", "tools", "rl"}

// Preferences tracks learned per-category weights in [0,1]. Positive
// feedback on a remembered interaction nudges its category up.
type Preferences struct {
	mu     sync.RWMutex
	values map[string]float64
}

func newPreferences() *Preferences {
	return &Preferences{values: make(map[string]float64)}
}

// load seeds the default categories from store, falling back to 0.5.
func (p *Preferences) load(ctx context.Context, store domain.PreferenceStore, logger *slog.Logger) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, cat := range defaultCategories {
		v := defaultPreference
		if store != nil {
			stored, ok, err := store.GetPreference(ctx, prefKeyPrefix+cat)
			switch {
			case err != nil:
				logger.Warn("load preference failed", "category", cat, "error", err)
			case ok:
				v = stored
			}
		}
		p.values[cat] = domain.ClampUnit(v)
	}
}

// Get returns the weight for category, 0.5 when unknown.
func (p *Preferences) Get(category string) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if v, ok := p.values[category]; ok {
		return v
	}
	return defaultPreference
}

// Categories returns the known categories sorted by name.
func (p *Preferences) Categories() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.values))
	for k := range p.values {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// observe applies the feedback in metadata. It reports the category and its
// new weight when something changed.
func (p *Preferences) observe(metadata map[string]any) (string, float64, bool) {
	if fb, _ := metadata["user_feedback"].(string); fb != "positive" {
		return "", 0, false
	}
	cat, _ := metadata["category"].(string)
	if cat == "" {
		cat = "general"
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	cur, ok := p.values[cat]
	if !ok {
		cur = defaultPreference
	}
	next := min(1.0, cur+preferenceStep)
	p.values[cat] = next
	return cat, next, true
}

func (p *Preferences) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.values)
}
