package badges

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	stats    Stats
	unlocked map[string]bool
	err      error
}

func (m *memoryStore) BadgeStats(ctx context.Context, userID string) (Stats, error) {
	return m.stats, m.err
}

func (m *memoryStore) UnlockBadges(ctx context.Context, userID string, ids []string) ([]string, error) {
	var fresh []string
	for _, id := range ids {
		if !m.unlocked[id] {
			m.unlocked[id] = true
			fresh = append(fresh, id)
		}
	}
	return fresh, nil
}

func TestRefreshReturnsOnlyNewBadges(t *testing.T) {
	store := &memoryStore{stats: Stats{Stories: 1}, unlocked: map[string]bool{}}
	svc := NewService(store)

	got, err := svc.Refresh(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "first-story", got[0].ID)

	store.stats.Words = 30
	got, err = svc.Refresh(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "word-collector", got[0].ID)
}

func TestRefreshPropagatesStoreError(t *testing.T) {
	svc := NewService(&memoryStore{err: errors.New("db down")})
	_, err := svc.Refresh(context.Background(), "u1")
	assert.Error(t, err)
}
