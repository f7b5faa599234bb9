package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/domain"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/ports"
)

const profileKeyPrefix = "engagement:profile:"

// RedisProfileCache stores derived profiles as JSON under a per-user key.
type RedisProfileCache struct {
	client *redis.Client
}

func NewRedisProfileCache(client *redis.Client) *RedisProfileCache {
	return &RedisProfileCache{client: client}
}

func (c *RedisProfileCache) Get(ctx context.Context, userID string) (*domain.UserProfile, error) {
	raw, err := c.client.Get(ctx, profileKeyPrefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out domain.UserProfile
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *RedisProfileCache) Set(ctx context.Context, profile domain.UserProfile, ttl time.Duration) error {
	raw, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, profileKeyPrefix+profile.UserID, raw, ttl).Err()
}

func (c *RedisProfileCache) Invalidate(ctx context.Context, userID string) error {
	return c.client.Del(ctx, profileKeyPrefix+userID).Err()
}

var _ ports.ProfileCache = (*RedisProfileCache)(nil)
