package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Store keeps one fixed-window counter per key until its reset time.
type Store interface {
	Get(ctx context.Context, key string) (count int, resetTime time.Time, exists bool, err error)
	Increment(ctx context.Context, key string, resetTime time.Time) (count int, err error)
	Reset(ctx context.Context, key string) error

	// Cleanup drops counters whose window has closed.
	Cleanup(ctx context.Context) (removed int64, err error)
}

// MemoryStore counts per process. Behind a load balancer every instance keeps
// its own windows, so use the database store there.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*window
	now      func() time.Time
}

type window struct {
	hits    int
	resetAt time.Time
}

func (w *window) open(now time.Time) bool {
	return now.Before(w.resetAt)
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counters: make(map[string]*window),
		now:      time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (int, time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w, ok := s.counters[key]; ok && w.open(s.now()) {
		return w.hits, w.resetAt, true, nil
	}
	return 0, time.Time{}, false, nil
}

func (s *MemoryStore) Increment(_ context.Context, key string, resetTime time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w, ok := s.counters[key]; ok && w.open(s.now()) {
		w.hits++
		return w.hits, nil
	}

	s.counters[key] = &window{hits: 1, resetAt: resetTime}
	return 1, nil
}

func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.counters, key)
	return nil
}

func (s *MemoryStore) Cleanup(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var removed int64
	for key, w := range s.counters {
		if !w.open(now) {
			delete(s.counters, key)
			removed++
		}
	}
	return removed, nil
}
