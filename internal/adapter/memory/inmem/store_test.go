package inmem

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jomra/internal/domain"
)

func TestStoreOrdering(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.Insert(ctx, domain.NewMemoryItem("old", "u", "a", now.Add(-time.Hour), 0.9, nil)))
	require.NoError(t, s.Insert(ctx, domain.NewMemoryItem("new", "u", "a", now, 0.4, nil)))
	require.NoError(t, s.Insert(ctx, domain.NewMemoryItem("ancient", "u", "a", now.Add(-90*24*time.Hour), 0.5, nil)))

	recent, err := s.QueryRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "new", recent[0].ID)
	assert.Equal(t, "old", recent[1].ID)

	prio, err := s.QueryPrioritized(ctx, now.Add(-7*24*time.Hour), 0.7, 10)
	require.NoError(t, err)
	require.Len(t, prio, 2)
	assert.Equal(t, "old", prio[0].ID)
	assert.Equal(t, "new", prio[1].ID)
}

func TestStorePruneAndClear(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.Insert(ctx, domain.NewMemoryItem("a", "u", "a", now.Add(-40*24*time.Hour), 0.3, nil)))
	require.NoError(t, s.Insert(ctx, domain.NewMemoryItem("b", "u", "a", now, 0.3, nil)))

	n, err := s.DeleteOlderThan(ctx, now.Add(-30*24*time.Hour), 0.5)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Equal(t, 1, s.Len())

	require.NoError(t, s.DeleteAll(ctx))
	assert.Equal(t, 0, s.Len())
}

func TestStorePreferences(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, ok, err := s.GetPreference(ctx, "pref_vision")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetPreference(ctx, "pref_vision", 0.8))
	v, ok, _ := s.GetPreference(ctx, "pref_vision")
	assert.True(t, ok)
	assert.Equal(t, 0.8, v)

	require.NoError(t, s.DeletePreferences(ctx))
	_, ok, _ = s.GetPreference(ctx, "pref_vision")
	assert.False(t, ok)
}

func TestStoreClosed(t *testing.T) {
	s := New()
	require.NoError(t, s.Close())
	err := s.Insert(context.Background(), domain.NewMemoryItem("x", "u", "a", time.Now(), 0.5, nil))
	assert.True(t, errors.Is(err, domain.ErrMemoryClosed))
}
