package auth

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RoleCache holds the current role per user id for a short time, bounding how
// long a token can outlive a role change.
type RoleCache interface {
	Get(ctx context.Context, userID string) (Role, bool, error)
	Set(ctx context.Context, userID string, role Role) error
	Invalidate(ctx context.Context, userID string) error
}

const roleKeyPrefix = "tallybook:role:"

// RedisRoleCache stores roles as plain string keys with a TTL.
type RedisRoleCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisRoleCache(client *redis.Client, ttl time.Duration) *RedisRoleCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisRoleCache{client: client, ttl: ttl}
}

func (c *RedisRoleCache) Get(ctx context.Context, userID string) (Role, bool, error) {
	v, err := c.client.Get(ctx, roleKeyPrefix+userID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return Role(v), true, nil
}

func (c *RedisRoleCache) Set(ctx context.Context, userID string, role Role) error {
	return c.client.Set(ctx, roleKeyPrefix+userID, string(role), c.ttl).Err()
}

func (c *RedisRoleCache) Invalidate(ctx context.Context, userID string) error {
	return c.client.Del(ctx, roleKeyPrefix+userID).Err()
}
