package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type LRU struct {
	entries *expirable.LRU[string, []byte]
	prefix  string
}

func NewLRU(opts Options) *LRU {
	opts = opts.withDefaults()
	return &LRU{
		entries: expirable.NewLRU[string, []byte](opts.Size, nil, opts.TTL),
		prefix:  opts.Prefix,
	}
}

func (c *LRU) Get(_ context.Context, key string, dst any) error {
	raw, ok := c.entries.Get(c.prefix + key)
	if !ok {
		return ErrMiss
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return nil
}

func (c *LRU) Set(_ context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	c.entries.Add(c.prefix+key, raw)
	return nil
}

func (c *LRU) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		c.entries.Remove(c.prefix + k)
	}
	return nil
}

func (c *LRU) Len() int {
	return c.entries.Len()
}

func (c *LRU) Ping(context.Context) error { return nil }

func (c *LRU) Close() error {
	c.entries.Purge()
	return nil
}
