package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a single-process sliding-window store.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*slidingWindow
	now     func() time.Time
	// lastSweep is when idle keys were last evicted.
	lastSweep time.Time
}

type slidingWindow struct {
	timestamps []time.Time
}

type MemoryOption func(*MemoryStore)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		buckets: make(map[string]*slidingWindow),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cutoff := now.Add(-window)
	s.sweep(now, window)

	sw := s.buckets[key]
	count := 0
	if sw != nil {
		sw.cleanup(cutoff)
		count = len(sw.timestamps)
		if count == 0 {
			delete(s.buckets, key)
			sw = nil
		}
	}
	if count >= limit {
		resetAt := now.Add(window)
		if count > 0 {
			resetAt = sw.timestamps[0].Add(window)
		}
		return Result{Allowed: false, Limit: limit, Remaining: 0, ResetAt: resetAt}, nil
	}

	if sw == nil {
		sw = &slidingWindow{}
		s.buckets[key] = sw
	}
	sw.timestamps = append(sw.timestamps, now)
	return Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - count - 1,
		ResetAt:   sw.timestamps[0].Add(window),
	}, nil
}

// Count returns the live entries for key without recording one.
func (s *MemoryStore) Count(key string, window time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	sw := s.buckets[key]
	if sw == nil {
		return 0
	}
	sw.cleanup(s.now().Add(-window))
	if len(sw.timestamps) == 0 {
		delete(s.buckets, key)
	}
	return len(sw.timestamps)
}

// Keys returns the number of tracked keys.
func (s *MemoryStore) Keys() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

// sweep evicts keys with no live entries, at most once per window.
func (s *MemoryStore) sweep(now time.Time, window time.Duration) {
	if now.Sub(s.lastSweep) < window {
		return
	}
	s.lastSweep = now
	cutoff := now.Add(-window)
	for key, sw := range s.buckets {
		sw.cleanup(cutoff)
		if len(sw.timestamps) == 0 {
			delete(s.buckets, key)
		}
	}
}

// cleanup drops timestamps at or before cutoff.
func (sw *slidingWindow) cleanup(cutoff time.Time) {
	i := 0
	for ; i < len(sw.timestamps); i++ {
		if sw.timestamps[i].After(cutoff) {
			break
		}
	}
	sw.timestamps = sw.timestamps[i:]
}
