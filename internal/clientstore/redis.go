package clientstore

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"chathistory/internal/redis"
)

// RedisStore keeps each value under client:<client_id>:<key> without expiry.
type RedisStore struct {
	client *redis.Client
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(clientID, key string) string {
	return fmt.Sprintf("client:%s:%s", clientID, key)
}

func (r *RedisStore) Get(ctx context.Context, clientID, key string) (string, error) {
	if err := validate(clientID, key); err != nil {
		return "", err
	}
	value, err := r.client.Get(ctx, redisKey(clientID, key))
	if err != nil {
		if errors.Is(err, redis.ErrCacheMiss) {
			return "", ErrNotFound
		}
		return "", errors.Wrap(err, "redis get")
	}
	return value, nil
}

func (r *RedisStore) Set(ctx context.Context, clientID, key, value string) error {
	if err := validate(clientID, key); err != nil {
		return err
	}
	return errors.Wrap(r.client.Set(ctx, redisKey(clientID, key), value, 0), "redis set")
}

func (r *RedisStore) Delete(ctx context.Context, clientID, key string) error {
	if err := validate(clientID, key); err != nil {
		return err
	}
	return errors.Wrap(r.client.Del(ctx, redisKey(clientID, key)), "redis del")
}
