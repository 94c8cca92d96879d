package history

import (
	"context"
	"sync"
)

// DefaultCapacity bounds the recent-entries log when none is configured
const DefaultCapacity = 200

// MemoryStore keeps the most recent entries in a ring buffer and running
// totals for every entry ever recorded
type MemoryStore struct {
	mu    sync.RWMutex
	ring  []Entry
	next  int
	full  bool
	stats Stats
}

// NewMemoryStore creates a store holding up to capacity recent entries
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryStore{
		ring:  make([]Entry, capacity),
		stats: newStats(),
	}
}

// Record appends e, evicting the oldest entry when full
func (s *MemoryStore) Record(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ring[s.next] = e
	s.next = (s.next + 1) % len(s.ring)
	if s.next == 0 {
		s.full = true
	}
	s.stats.add(e)
	return nil
}

// Recent returns up to n entries, newest first. n <= 0 returns all retained.
func (s *MemoryStore) Recent(_ context.Context, n int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	size := s.next
	if s.full {
		size = len(s.ring)
	}
	if n <= 0 || n > size {
		n = size
	}

	out := make([]Entry, 0, n)
	for i := 1; i <= n; i++ {
		idx := (s.next - i + len(s.ring)) % len(s.ring)
		out = append(out, s.ring[idx])
	}
	return out, nil
}

// Stats returns a copy of the running totals
func (s *MemoryStore) Stats(_ context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := newStats()
	out.Total = s.stats.Total
	for k, v := range s.stats.ByLevel {
		out.ByLevel[k] = v
	}
	for k, v := range s.stats.ByKind {
		out.ByKind[k] = v
	}
	for k, v := range s.stats.ByGroup {
		out.ByGroup[k] = v
	}
	out.finish()
	return out, nil
}
