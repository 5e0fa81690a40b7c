package database

import (
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/pkg/errors"
)

// NewMemcached builds a client over one or more servers and checks that they answer.
func NewMemcached(servers ...string) (*memcache.Client, error) {
	client := memcache.New(servers...)
	client.Timeout = 2 * time.Second
	if err := client.Ping(); err != nil {
		return nil, errors.Wrap(err, "memcached unreachable")
	}
	return client, nil
}
