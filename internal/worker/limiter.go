package worker

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// DefaultIdleTTL is how long an unused per-key limiter is kept
const DefaultIdleTTL = 10 * time.Minute

// Limiter implements per-key token-bucket rate limiting. Keys are client
// addresses for the HTTP API and a fixed key for batch runs. Limiters idle
// for longer than the idle TTL are dropped; keys given their own rate with
// SetKeyRate are kept for the limiter's lifetime.
type Limiter struct {
	limiters     *gocache.Cache
	overrides    map[string]*rate.Limiter
	mu           sync.Mutex
	defaultRate  rate.Limit
	defaultBurst int
	idleTTL      time.Duration
}

// NewLimiter creates a limiter allowing requestsPerSecond with burst per key.
// requestsPerSecond <= 0 means unlimited.
func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 5
	}
	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}

	return &Limiter{
		limiters:     gocache.New(DefaultIdleTTL, DefaultIdleTTL),
		overrides:    make(map[string]*rate.Limiter),
		defaultRate:  limit,
		defaultBurst: burst,
		idleTTL:      DefaultIdleTTL,
	}
}

// Wait blocks until key may proceed or ctx is done
func (l *Limiter) Wait(ctx context.Context, key string) error {
	return l.getLimiter(key).Wait(ctx)
}

// Allow reports whether key may proceed now, consuming a token if so
func (l *Limiter) Allow(key string) bool {
	return l.getLimiter(key).Allow()
}

// getLimiter returns the limiter for key, refreshing its idle expiry
func (l *Limiter) getLimiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if limiter, ok := l.overrides[key]; ok {
		return limiter
	}

	var limiter *rate.Limiter
	if v, ok := l.limiters.Get(key); ok {
		limiter = v.(*rate.Limiter)
	} else {
		limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
	}
	l.limiters.Set(key, limiter, l.idleTTL)
	return limiter
}

// SetKeyRate gives one key its own rate. requestsPerSecond <= 0 means unlimited.
func (l *Limiter) SetKeyRate(key string, requestsPerSecond float64, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if burst <= 0 {
		burst = l.defaultBurst
	}
	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}
	l.limiters.Delete(key)
	l.overrides[key] = rate.NewLimiter(limit, burst)
}

// Len returns the number of tracked keys
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limiters.ItemCount() + len(l.overrides)
}
