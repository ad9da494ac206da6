package memory

import (
	"context"
	"sync"
	"time"

	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/types"
)

// AccessRecordStore is an in-memory append-only log of access decisions.
// It is intended for use in tests and dev environments.
type AccessRecordStore struct {
	mu      sync.Mutex
	records []types.AccessDecision
}

func NewAccessRecordStore() *AccessRecordStore {
	return &AccessRecordStore{}
}

func (s *AccessRecordStore) InsertAccessRecord(_ context.Context, d types.AccessDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, d)
	return nil
}

func (s *AccessRecordStore) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	var deleted int64
	for _, r := range s.records {
		if r.OccurredAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	s.records = kept
	return deleted, nil
}

// Records returns a copy of all recorded decisions.  Test-only helper.
func (s *AccessRecordStore) Records() []types.AccessDecision {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.AccessDecision, len(s.records))
	copy(out, s.records)
	return out
}
