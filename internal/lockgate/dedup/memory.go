package dedup

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps the last mark time per key.  Entries are overwritten,
// never appended, so size is bounded by the number of distinct keys.
type MemoryStore struct {
	mu    sync.Mutex
	marks map[string]time.Time
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{marks: make(map[string]time.Time), now: now}
}

func (s *MemoryStore) CheckAndMark(_ context.Context, key string, window time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if last, ok := s.marks[key]; ok && now.Sub(last) < window {
		return false, nil
	}
	s.marks[key] = now
	return true, nil
}

func (s *MemoryStore) Mark(_ context.Context, key string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marks[key] = s.now()
	return nil
}

func (s *MemoryStore) Marked(_ context.Context, key string, window time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.marks[key]
	return ok && s.now().Sub(last) < window, nil
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.marks)
}
