// Package cache stores small JSON documents (clinic settings, module flags)
// in-process or in Redis behind one interface.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Cache is a TTL key/value store. Values are JSON encoded by the
// implementation so callers can share entries across replicas.
type Cache interface {
	Get(ctx context.Context, key string, dst any) error
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
	Close() error
}

// Options configures either backend.
type Options struct {
	Size   int
	TTL    time.Duration
	Prefix string
}

func (o Options) withDefaults() Options {
	if o.Size <= 0 {
		o.Size = 1024
	}
	if o.TTL <= 0 {
		o.TTL = 5 * time.Minute
	}
	if o.Prefix == "" {
		o.Prefix = "agenda:"
	}
	return o
}

// New returns a Redis-backed cache when redisURL is set and an in-process
// LRU otherwise.
func New(ctx context.Context, redisURL string, opts Options) (Cache, error) {
	if redisURL != "" {
		return NewRedis(ctx, redisURL, opts)
	}
	return NewLRU(opts), nil
}
