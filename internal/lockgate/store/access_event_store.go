package store

import (
	"context"
	"time"

	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/types"
)

// AccessRecordStore persists access decisions as an append-only audit log.
type AccessRecordStore interface {
	InsertAccessRecord(ctx context.Context, d types.AccessDecision) error
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
