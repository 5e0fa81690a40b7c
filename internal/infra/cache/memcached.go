package cache

import (
	"context"
	"errors"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/totegamma/castline/internal/domain"
)

// MemcachedCache stores local values in memcached. Items never expire, but
// memcached may still evict them under memory pressure.
type MemcachedCache struct {
	client    *memcache.Client
	namespace string
}

func NewMemcachedCache(client *memcache.Client, namespace string) *MemcachedCache {
	return &MemcachedCache{client: client, namespace: namespace}
}

func (m *MemcachedCache) key(k string) string {
	return m.namespace + ":" + k
}

func (m *MemcachedCache) GetLocal(ctx context.Context, key string) (string, error) {
	item, err := m.client.Get(m.key(key))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return "", domain.NotFoundError{Resource: key}
		}
		return "", err
	}
	return string(item.Value), nil
}

func (m *MemcachedCache) SetLocal(ctx context.Context, key, value string) error {
	return m.client.Set(&memcache.Item{Key: m.key(key), Value: []byte(value)})
}

func (m *MemcachedCache) RemoveLocal(ctx context.Context, key string) error {
	err := m.client.Delete(m.key(key))
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil
	}
	return err
}
