package cache

import (
	"context"
	"time"
)

// LayeredCache checks a fast local cache before a shared remote one
type LayeredCache struct {
	local  Cache
	remote Cache
}

// NewLayeredCache creates a two-level cache
func NewLayeredCache(local, remote Cache) *LayeredCache {
	return &LayeredCache{local: local, remote: remote}
}

// Get retrieves a value, checking local first, then remote
func (c *LayeredCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if val, found := c.local.Get(ctx, key); found {
		return val, true
	}

	if val, found := c.remote.Get(ctx, key); found {
		// Promote to the local cache with its default TTL
		_ = c.local.Set(ctx, key, val, 0)
		return val, true
	}

	return nil, false
}

// Set stores a value in both caches
func (c *LayeredCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.local.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	return c.remote.Set(ctx, key, value, ttl)
}

// Delete removes a value from both caches
func (c *LayeredCache) Delete(ctx context.Context, key string) error {
	if err := c.local.Delete(ctx, key); err != nil {
		return err
	}
	return c.remote.Delete(ctx, key)
}

// Clear removes all values from both caches
func (c *LayeredCache) Clear(ctx context.Context) error {
	if err := c.local.Clear(ctx); err != nil {
		return err
	}
	return c.remote.Clear(ctx)
}
