package memory

import (
	"context"
	"sync"

	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/types"
)

type AuditLogStore struct {
	mu      sync.Mutex
	entries []types.AuditEntry
}

func NewAuditLogStore() *AuditLogStore {
	return &AuditLogStore{}
}

func (s *AuditLogStore) InsertAuditLog(_ context.Context, e types.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

// Entries returns a copy of all audit entries.  Test-only helper.
func (s *AuditLogStore) Entries() []types.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.AuditEntry, len(s.entries))
	copy(out, s.entries)
	return out
}
