package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Cache is the caching interface. All cache operations go through here.
// Implementations must be safe for concurrent use.
type Cache interface {
	Ping(ctx context.Context) error
	SetTaskStatus(ctx context.Context, taskID uuid.UUID, status string, ttl time.Duration) error
	GetTaskStatus(ctx context.Context, taskID uuid.UUID) (string, bool, error)
	// IncrWindow counts a hit in the fixed window at key and returns the count
	// so far plus the time left before the window closes.
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// RedisCache implements the Cache interface using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

// NewRedisClient parses a Redis URL and returns a client. The client is
// shared by the cache and the sync queue.
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) SetTaskStatus(ctx context.Context, taskID uuid.UUID, status string, ttl time.Duration) error {
	return c.client.Set(ctx, TaskStatusKey(taskID), status, ttl).Err()
}

func (c *RedisCache) GetTaskStatus(ctx context.Context, taskID uuid.UUID) (string, bool, error) {
	val, err := c.client.Get(ctx, TaskStatusKey(taskID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// IncrWindow sets the expiry only on the hit that opens the window (EXPIRE NX,
// Redis 7+), so later hits never push the reset out.
func (c *RedisCache) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	ttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}

	left := ttl.Val()
	if left <= 0 || left > window {
		left = window
	}
	return incr.Val(), left, nil
}

var _ Cache = (*RedisCache)(nil)
