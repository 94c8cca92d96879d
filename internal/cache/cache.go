package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ppiankov/riskwatch/internal/logger"
)

// Cache stores serialized assessments
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// AssessmentKey derives a cache key from everything an assessment depends
// on: the rule set, the reference tables and the submission fields. Parts are
// length-prefixed so ("ab", "c") and ("a", "bc") differ.
func AssessmentKey(parts ...string) string {
	h := sha256.New()
	var n [8]byte
	for _, p := range parts {
		binary.LittleEndian.PutUint64(n[:], uint64(len(p)))
		h.Write(n[:])
		h.Write([]byte(p))
	}
	return "assessment:v1:" + hex.EncodeToString(h.Sum(nil))
}

// Backends accepted by New
const (
	BackendMemory  = "memory"
	BackendRedis   = "redis"
	BackendLayered = "layered"
)

// New builds the cache selected by backend. client is only used by the redis
// and layered backends and may be nil for memory.
func New(backend string, ttl time.Duration, client redis.Cmdable, prefix string, log *logger.Logger) (Cache, error) {
	switch backend {
	case "", BackendMemory:
		return NewMemoryCache(ttl, 2*ttl), nil
	case BackendRedis, BackendLayered:
		if client == nil {
			return nil, fmt.Errorf("cache backend %q needs a redis client", backend)
		}
		remote := NewRedisCache(client, prefix, ttl, log)
		if backend == BackendRedis {
			return remote, nil
		}
		return NewLayeredCache(NewMemoryCache(ttl, 2*ttl), remote), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", backend)
	}
}
