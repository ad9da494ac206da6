package store

import (
	"context"
	"time"

	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/types"
)

// DeviceSighting carries what a lock revealed about itself in one event.
// Zero values mean "not reported" and leave the stored column untouched,
// except Status which is always written.
type DeviceSighting struct {
	DeviceID    string
	MACAddress  string
	WifiCapable bool
	Status      types.DeviceStatus
	BatteryPct  *int
	SeenAt      time.Time
}

type DeviceStore interface {
	// UpsertDevice creates the device row if missing and refreshes its
	// status snapshot.  The zone binding is never modified.  created reports
	// whether the row was new.
	UpsertDevice(ctx context.Context, s DeviceSighting) (created bool, err error)
	GetDevice(ctx context.Context, deviceID string) (types.Device, bool, error)
}
