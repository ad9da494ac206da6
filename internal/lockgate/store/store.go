package store

import (
	"context"

	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/types"
)

// UserStore looks users up by each credential kind.  A miss is reported as
// ok=false with a nil error; errors are reserved for infrastructure failures.
type UserStore interface {
	FindUserByFingerprint(ctx context.Context, fingerprintID string) (types.User, bool, error)
	FindUserByCard(ctx context.Context, cardID string) (types.User, bool, error)
	FindUserByName(ctx context.Context, displayName string) (types.User, bool, error)
}

// ZoneStore returns the zone a device is bound to.  An unknown or unbound
// device yields ok=false.
type ZoneStore interface {
	ZoneForDevice(ctx context.Context, deviceID string) (types.Zone, bool, error)
}

// AuditLogStore records operator-facing side effects.
type AuditLogStore interface {
	InsertAuditLog(ctx context.Context, entry types.AuditEntry) error
}
