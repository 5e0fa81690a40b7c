package cache

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/totegamma/castline/internal/domain"
)

// RedisCache stores local values as plain redis strings under namespace:key.
type RedisCache struct {
	client    redis.UniversalClient
	namespace string
}

func NewRedisCache(client redis.UniversalClient, namespace string) *RedisCache {
	return &RedisCache{client: client, namespace: namespace}
}

func (r *RedisCache) key(k string) string {
	return r.namespace + ":" + k
}

func (r *RedisCache) GetLocal(ctx context.Context, key string) (string, error) {
	v, err := r.client.Get(ctx, r.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", domain.NotFoundError{Resource: key}
		}
		return "", err
	}
	return v, nil
}

func (r *RedisCache) SetLocal(ctx context.Context, key, value string) error {
	return r.client.Set(ctx, r.key(key), value, 0).Err()
}

func (r *RedisCache) RemoveLocal(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}
