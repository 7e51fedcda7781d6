package directory

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dukex/flowstate/pkg/models"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultCacheTTL bounds how long a display name is served from Redis.
	DefaultCacheTTL = 10 * time.Minute

	keyPrefix = "flowstate:display:"
)

// CachedStore serves display-name lookups from Redis and falls back to the
// wrapped store on a miss or when Redis is unavailable. User and role
// resolution always goes to the wrapped store.
type CachedStore struct {
	next   Store
	client redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedStore wraps next with a Redis display-name cache.
func NewCachedStore(next Store, client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *CachedStore {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	return &CachedStore{
		next:   next,
		client: client,
		ttl:    ttl,
		logger: logger.With("module", "directory_cache"),
	}
}

func (c *CachedStore) UsersByRole(ctx context.Context, roleIDs []string) ([]models.User, error) {
	return c.next.UsersByRole(ctx, roleIDs)
}

func (c *CachedStore) UsersByID(ctx context.Context, ids []string) ([]models.User, error) {
	return c.next.UsersByID(ctx, ids)
}

func (c *CachedStore) DisplayName(ctx context.Context, userID string) (string, error) {
	return c.cached(ctx, "user:"+userID, func() (string, error) {
		return c.next.DisplayName(ctx, userID)
	})
}

func (c *CachedStore) EventDisplayName(ctx context.Context, eventName string) (string, error) {
	return c.cached(ctx, "event:"+eventName, func() (string, error) {
		return c.next.EventDisplayName(ctx, eventName)
	})
}

func (c *CachedStore) MappingDisplayName(ctx context.Context, mappingID string) (string, error) {
	return c.cached(ctx, "mapping:"+mappingID, func() (string, error) {
		return c.next.MappingDisplayName(ctx, mappingID)
	})
}

func (c *CachedStore) cached(ctx context.Context, key string, load func() (string, error)) (string, error) {
	key = keyPrefix + key

	value, err := c.client.Get(ctx, key).Result()
	if err == nil {
		return value, nil
	}

	if !errors.Is(err, redis.Nil) {
		c.logger.WarnContext(ctx, "Display name cache read failed", "key", key, "error", err)
	}

	value, err = load()
	if err != nil {
		return "", err
	}

	err = c.client.Set(ctx, key, value, c.ttl).Err()
	if err != nil {
		c.logger.WarnContext(ctx, "Display name cache write failed", "key", key, "error", err)
	}

	return value, nil
}
