package notification

import (
	"context"
	"time"

	"xquests/utils"

	"github.com/go-redis/redis/v8"
)

// TokenStore keeps one FCM device token per user.
type TokenStore interface {
	GetToken(ctx context.Context, userID string) (string, error)
	SetToken(ctx context.Context, userID, token string) error
	DeleteToken(ctx context.Context, userID string) error
}

type RedisTokenStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisTokenStore(client *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{client: client, ttl: utils.DeviceTokenTTL}
}

// GetToken returns "" with a nil error when the user has no token.
func (s *RedisTokenStore) GetToken(ctx context.Context, userID string) (string, error) {
	token, err := s.client.Get(ctx, utils.DeviceTokenPrefix+userID).Result()
	if err == redis.Nil {
		return "", nil
	}
	return token, err
}

func (s *RedisTokenStore) SetToken(ctx context.Context, userID, token string) error {
	return s.client.Set(ctx, utils.DeviceTokenPrefix+userID, token, s.ttl).Err()
}

func (s *RedisTokenStore) DeleteToken(ctx context.Context, userID string) error {
	return s.client.Del(ctx, utils.DeviceTokenPrefix+userID).Err()
}
