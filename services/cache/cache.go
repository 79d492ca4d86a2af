// File: services/cache/cache.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"xquests/models"

	"github.com/go-redis/redis/v8"
)

// LocalCache is a durable string key-value store.
type LocalCache interface {
	// Get returns the value under key; ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

// RedisCache implements LocalCache on a Redis database.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache returns a cache whose entries expire after ttl. A zero ttl
// keeps entries forever.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key, value string) error {
	return c.client.Set(ctx, key, value, c.ttl).Err()
}

// LoadNotifications reads the serialized notification array under key. A
// missing key yields an empty list.
func LoadNotifications(ctx context.Context, c LocalCache, key string) ([]models.Notification, error) {
	raw, ok, err := c.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read notification cache: %w", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var list []models.Notification
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("failed to decode notification cache: %w", err)
	}
	return list, nil
}

// SaveNotifications overwrites key with list.
func SaveNotifications(ctx context.Context, c LocalCache, key string, list []models.Notification) error {
	if list == nil {
		list = []models.Notification{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("failed to encode notification cache: %w", err)
	}
	if err := c.Set(ctx, key, string(b)); err != nil {
		return fmt.Errorf("failed to write notification cache: %w", err)
	}
	return nil
}
