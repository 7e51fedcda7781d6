package directory_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dukex/flowstate/pkg/directory"
	"github.com/dukex/flowstate/pkg/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	calls map[string]int
	names map[string]string
}

func newCountingStore() *countingStore {
	return &countingStore{
		calls: map[string]int{},
		names: map[string]string{"u1": "Ada", "create": "Create", "3": "Company"},
	}
}

func (s *countingStore) lookup(key string) (string, error) {
	s.calls[key]++

	name, ok := s.names[key]
	if !ok {
		return "", errors.New("not found")
	}

	return name, nil
}

func (s *countingStore) UsersByRole(context.Context, []string) ([]models.User, error) {
	s.calls["roles"]++

	return []models.User{{ID: "u1", Email: "ada@example.com"}}, nil
}

func (s *countingStore) UsersByID(context.Context, []string) ([]models.User, error) {
	return nil, nil
}

func (s *countingStore) DisplayName(_ context.Context, userID string) (string, error) {
	return s.lookup(userID)
}

func (s *countingStore) EventDisplayName(_ context.Context, eventName string) (string, error) {
	return s.lookup(eventName)
}

func (s *countingStore) MappingDisplayName(_ context.Context, mappingID string) (string, error) {
	return s.lookup(mappingID)
}

func setupCache(t *testing.T) (*directory.CachedStore, *countingStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := newCountingStore()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	return directory.NewCachedStore(store, client, time.Minute, logger), store, mr
}

func TestCachedStore_ServesRepeatLookupsFromRedis(t *testing.T) {
	cache, store, mr := setupCache(t)
	ctx := context.Background()

	for range 3 {
		name, err := cache.EventDisplayName(ctx, "create")
		require.NoError(t, err)
		assert.Equal(t, "Create", name)
	}

	assert.Equal(t, 1, store.calls["create"])
	assert.True(t, mr.Exists("flowstate:display:event:create"))

	mr.FastForward(2 * time.Minute)

	_, err := cache.EventDisplayName(ctx, "create")
	require.NoError(t, err)
	assert.Equal(t, 2, store.calls["create"])
}

func TestCachedStore_KeysAreNamespacedByKind(t *testing.T) {
	cache, _, mr := setupCache(t)
	ctx := context.Background()

	_, err := cache.DisplayName(ctx, "u1")
	require.NoError(t, err)
	_, err = cache.MappingDisplayName(ctx, "3")
	require.NoError(t, err)

	assert.True(t, mr.Exists("flowstate:display:user:u1"))
	assert.True(t, mr.Exists("flowstate:display:mapping:3"))
}

func TestCachedStore_MissesAreNotCached(t *testing.T) {
	cache, store, mr := setupCache(t)
	ctx := context.Background()

	_, err := cache.MappingDisplayName(ctx, "9")
	require.Error(t, err)
	_, err = cache.MappingDisplayName(ctx, "9")
	require.Error(t, err)

	assert.Equal(t, 2, store.calls["9"])
	assert.False(t, mr.Exists("flowstate:display:mapping:9"))
}

func TestCachedStore_FallsBackWhenRedisIsDown(t *testing.T) {
	cache, store, mr := setupCache(t)
	ctx := context.Background()

	mr.Close()

	name, err := cache.DisplayName(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", name)
	assert.Equal(t, 1, store.calls["u1"])

	users, err := cache.UsersByRole(ctx, []string{"r1"})
	require.NoError(t, err)
	assert.Len(t, users, 1)
}
