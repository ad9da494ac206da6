package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	dbpkg "github.com/BrandonDHaskell/Portunus/lockgate/internal/db"
	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/store"
	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/types"
)

type DeviceStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewDeviceStore(db *sql.DB, writer *dbpkg.Worker) *DeviceStore {
	return &DeviceStore{db: db, writer: writer}
}

// UpsertDevice ensures the device row exists and refreshes its status
// snapshot.  zone_id is left alone: binding a lock to a zone is an
// administrative action.
func (s *DeviceStore) UpsertDevice(ctx context.Context, in store.DeviceSighting) (bool, error) {
	deviceID := strings.TrimSpace(in.DeviceID)
	if deviceID == "" {
		return false, nil
	}
	if in.SeenAt.IsZero() {
		in.SeenAt = time.Now().UTC()
	}
	ms := in.SeenAt.UTC().UnixMilli()

	status := in.Status
	if status == "" {
		status = types.DeviceActive
	}
	var mac any
	if m := strings.TrimSpace(in.MACAddress); m != "" {
		mac = m
	}
	var battery any
	if in.BatteryPct != nil {
		battery = *in.BatteryPct
	}
	wifi := 0
	if in.WifiCapable {
		wifi = 1
	}

	var created bool
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO devices(
  device_id, name, mac_address, wifi_capable, status, battery_pct,
  last_seen_at_ms, created_at_ms, updated_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
`, deviceID, "Lock-"+deviceID, mac, wifi, string(status), battery, ms, ms, ms)
		if err != nil {
			return fmt.Errorf("UpsertDevice insert: %w", err)
		}
		n, _ := res.RowsAffected()
		created = n == 1
		if created {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `
UPDATE devices
SET status          = ?,
    mac_address     = COALESCE(?, mac_address),
    wifi_capable    = MAX(wifi_capable, ?),
    battery_pct     = COALESCE(?, battery_pct),
    last_seen_at_ms = ?,
    updated_at_ms   = ?
WHERE device_id = ?;
`, string(status), mac, wifi, battery, ms, ms, deviceID); err != nil {
			return fmt.Errorf("UpsertDevice update: %w", err)
		}
		return nil
	})
	return created, err
}

func (s *DeviceStore) GetDevice(ctx context.Context, deviceID string) (types.Device, bool, error) {
	var (
		d       types.Device
		zoneID  sql.NullInt64
		mac     sql.NullString
		wifi    int
		status  string
		battery sql.NullInt64
		seenMs  sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT device_id, zone_id, name, mac_address, wifi_capable, status, battery_pct, last_seen_at_ms
FROM devices WHERE device_id = ?;
`, deviceID).Scan(&d.ID, &zoneID, &d.Name, &mac, &wifi, &status, &battery, &seenMs)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Device{}, false, nil
	}
	if err != nil {
		return types.Device{}, false, fmt.Errorf("GetDevice: %w", err)
	}
	if zoneID.Valid {
		v := zoneID.Int64
		d.ZoneID = &v
	}
	d.MACAddress = mac.String
	d.WifiCapable = wifi == 1
	d.Status = types.DeviceStatus(status)
	if battery.Valid {
		v := int(battery.Int64)
		d.BatteryPct = &v
	}
	if seenMs.Valid {
		d.LastSeenAt = time.UnixMilli(seenMs.Int64).UTC()
	}
	return d, true, nil
}
