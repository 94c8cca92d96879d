package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ppiankov/riskwatch/internal/logger"
	"github.com/ppiankov/riskwatch/internal/model"
)

// NewRedisClient connects to Redis and pings it
func NewRedisClient(ctx context.Context, cfg model.RedisConfig, log *logger.Logger) (*redis.Client, error) {
	log = log.WithComponent("redis")
	log.Info().Str("addr", cfg.Addr).Int("db", cfg.DB).Msg("connecting to Redis")

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// RedisCache stores assessments in Redis under a key prefix
type RedisCache struct {
	client     redis.Cmdable
	prefix     string
	defaultTTL time.Duration
	log        *logger.Logger
}

// NewRedisCache creates a cache over client
func NewRedisCache(client redis.Cmdable, prefix string, defaultTTL time.Duration, log *logger.Logger) *RedisCache {
	return &RedisCache{
		client:     client,
		prefix:     prefix + "cache:",
		defaultTTL: defaultTTL,
		log:        log.WithComponent("cache"),
	}
}

func (c *RedisCache) key(k string) string {
	return c.prefix + k
}

// Get retrieves a value. Redis errors are logged and reported as misses.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn().Err(err).Msg("redis get failed")
		}
		return nil, false
	}
	return val, true
}

// Set stores a value. A zero TTL uses the default.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	if err := c.client.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes a value
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Clear removes every key under the cache prefix
func (c *RedisCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis del: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	return nil
}
