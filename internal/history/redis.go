package history

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/ppiankov/riskwatch/internal/model"
)

// Stats hash field prefixes
const (
	fieldTotal  = "total"
	fieldLevel  = "level:"
	fieldKind   = "kind:"
	fieldGroup  = "group:"
	recentKey   = "history:recent"
	countersKey = "history:stats"
)

// RedisStore keeps history in Redis so several API replicas share one
// dashboard. Recent entries are a capped list (LPUSH + LTRIM); totals are
// hash counters (HINCRBY).
type RedisStore struct {
	client   redis.Cmdable
	prefix   string
	capacity int
}

// NewRedisStore creates a store over client with keys under prefix
func NewRedisStore(client redis.Cmdable, prefix string, capacity int) *RedisStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &RedisStore{client: client, prefix: prefix, capacity: capacity}
}

// Record appends e and bumps the counters in one transaction
func (s *RedisStore) Record(ctx context.Context, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal history entry: %w", err)
	}

	recent := s.prefix + recentKey
	counters := s.prefix + countersKey
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, recent, data)
		pipe.LTrim(ctx, recent, 0, int64(s.capacity-1))
		pipe.HIncrBy(ctx, counters, fieldTotal, 1)
		pipe.HIncrBy(ctx, counters, fieldLevel+string(e.Level), 1)
		pipe.HIncrBy(ctx, counters, fieldKind+string(e.Kind), 1)
		for _, g := range e.Groups {
			pipe.HIncrBy(ctx, counters, fieldGroup+g, 1)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record history: %w", err)
	}
	return nil
}

// Recent returns up to n entries, newest first
func (s *RedisStore) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 || n > s.capacity {
		n = s.capacity
	}
	raw, err := s.client.LRange(ctx, s.prefix+recentKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	out := make([]Entry, 0, len(raw))
	for _, r := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			return nil, fmt.Errorf("decode history entry: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

// Stats reads the counters hash
func (s *RedisStore) Stats(ctx context.Context) (Stats, error) {
	fields, err := s.client.HGetAll(ctx, s.prefix+countersKey).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("read history stats: %w", err)
	}
	return parseCounters(fields)
}

func parseCounters(fields map[string]string) (Stats, error) {
	st := newStats()
	for field, v := range fields {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Stats{}, fmt.Errorf("history counter %s: %w", field, err)
		}
		switch {
		case field == fieldTotal:
			st.Total = n
		case strings.HasPrefix(field, fieldLevel):
			st.ByLevel[model.RiskLevel(strings.TrimPrefix(field, fieldLevel))] = n
		case strings.HasPrefix(field, fieldKind):
			st.ByKind[model.SubjectKind(strings.TrimPrefix(field, fieldKind))] = n
		case strings.HasPrefix(field, fieldGroup):
			st.ByGroup[strings.TrimPrefix(field, fieldGroup)] = n
		}
	}
	st.finish()
	return st, nil
}
