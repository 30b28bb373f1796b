package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const csrfKeyPrefix = "whiteboar:csrf:"

// RedisTokenStore keeps issued CSRF token fingerprints so each token can be consumed once
// across every API instance.
type RedisTokenStore struct {
	client *redis.Client
}

func NewRedisTokenStore(client *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{client: client}
}

func (store *RedisTokenStore) Put(ctx context.Context, key string, ttl time.Duration) error {
	return store.client.Set(ctx, csrfKeyPrefix+key, "1", ttl).Err()
}

// Consume deletes the key atomically and reports whether it was still present.
func (store *RedisTokenStore) Consume(ctx context.Context, key string) (bool, error) {
	_, err := store.client.GetDel(ctx, csrfKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
