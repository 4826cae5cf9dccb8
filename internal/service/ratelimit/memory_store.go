package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryWindow struct {
	hits   []time.Time
	window time.Duration
}

// MemoryStore keeps windows in process memory. Limits reset on restart
// and are not shared between instances.
type MemoryStore struct {
	mu   sync.Mutex
	keys map[string]*memoryWindow
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string]*memoryWindow)}
}

func (s *MemoryStore) Hit(_ context.Context, key string, now time.Time, window time.Duration, limit int) (Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.keys[key]
	if !ok {
		w = &memoryWindow{}
		s.keys[key] = w
	}
	w.window = window
	w.hits = prune(w.hits, now.Add(-window))

	allowed := len(w.hits) < limit
	if allowed {
		w.hits = append(w.hits, now)
	}

	out := Window{Count: len(w.hits), Allowed: allowed}
	if len(w.hits) > 0 {
		out.Oldest = w.hits[0]
	}
	return out, nil
}

func (s *MemoryStore) Cleanup(_ context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, w := range s.keys {
		w.hits = prune(w.hits, now.Add(-w.window))
		if len(w.hits) == 0 {
			delete(s.keys, key)
		}
	}
	return nil
}

// Len returns the number of tracked keys
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

// prune drops hits at or before cutoff. hits are in ascending order.
func prune(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return hits[i:]
}
