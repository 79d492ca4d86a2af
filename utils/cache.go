// File: utils/cache.go
package utils

import (
	"context"
	"log"
	"time"

	"xquests/config"

	"github.com/go-redis/redis/v8"
)

var (
	// CacheClient backs the per-session notification cache and device tokens.
	CacheClient *redis.Client
	// RealtimeClient carries the pub/sub fan-in channel and presence sets.
	RealtimeClient *redis.Client
)

func newRedisClient(db int, name string) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		log.Fatalf("Failed to connect to Redis (%s): %v", name, err)
	}
	return client
}

// InitRedis initializes every Redis client the service uses.
func InitRedis() {
	GetCacheClient()
	GetRealtimeClient()
}

// GetCacheClient returns the generic cache client.
func GetCacheClient() *redis.Client {
	if CacheClient == nil {
		CacheClient = newRedisClient(config.AppConfig.RedisCacheDB, "Cache")
	}
	return CacheClient
}

// GetRealtimeClient returns the client used by the realtime transport.
func GetRealtimeClient() *redis.Client {
	if RealtimeClient == nil {
		RealtimeClient = newRedisClient(config.AppConfig.RedisRealtimeDB, "Realtime")
	}
	return RealtimeClient
}
