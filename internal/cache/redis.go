// Package cache provides a Redis-backed cache for version comparisons.
// Comparison results are immutable for a given version pair, so the cache
// only needs a TTL, never invalidation on write.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"flowline/api/internal/version"

	"github.com/redis/go-redis/v9"
)

// Cache stores computed comparisons keyed by workflow and version pair.
type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewCache connects to Redis and verifies the connection.
func NewCache(redisURL string, ttl time.Duration) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Cache{client: client, prefix: "cmp:", ttl: ttl}, nil
}

// NewCacheWithClient builds a cache from an existing Redis client.
func NewCacheWithClient(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, prefix: "cmp:", ttl: ttl}
}

func (c *Cache) key(workflowID string, from, to int) string {
	return fmt.Sprintf("%s%s:%d:%d", c.prefix, workflowID, from, to)
}

// GetComparison returns the cached comparison or (nil, nil) on a miss.
func (c *Cache) GetComparison(ctx context.Context, workflowID string, from, to int) (*version.Comparison, error) {
	data, err := c.client.Get(ctx, c.key(workflowID, from, to)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get comparison: %w", err)
	}

	var cmp version.Comparison
	if err := json.Unmarshal([]byte(data), &cmp); err != nil {
		return nil, fmt.Errorf("unmarshal comparison: %w", err)
	}
	return &cmp, nil
}

// PutComparison stores a comparison with the configured TTL.
func (c *Cache) PutComparison(ctx context.Context, workflowID string, from, to int, cmp version.Comparison) error {
	data, err := json.Marshal(cmp)
	if err != nil {
		return fmt.Errorf("marshal comparison: %w", err)
	}
	if err := c.client.Set(ctx, c.key(workflowID, from, to), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("put comparison: %w", err)
	}
	return nil
}

// Ping checks if Redis is reachable.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}
