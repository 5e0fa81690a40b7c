package cache

import (
	"context"

	gocache "github.com/patrickmn/go-cache"

	"github.com/totegamma/castline/internal/domain"
)

// MemoryCache keeps local values in process. Entries never expire.
type MemoryCache struct {
	c *gocache.Cache
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{c: gocache.New(gocache.NoExpiration, 0)}
}

func (m *MemoryCache) GetLocal(ctx context.Context, key string) (string, error) {
	v, found := m.c.Get(key)
	if !found {
		return "", domain.NotFoundError{Resource: key}
	}
	s, ok := v.(string)
	if !ok {
		return "", domain.NotFoundError{Resource: key}
	}
	return s, nil
}

func (m *MemoryCache) SetLocal(ctx context.Context, key, value string) error {
	m.c.Set(key, value, gocache.NoExpiration)
	return nil
}

func (m *MemoryCache) RemoveLocal(ctx context.Context, key string) error {
	m.c.Delete(key)
	return nil
}
