package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/store"
	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/types"
)

// DeviceRegistry keeps the device table in step with lock traffic.  A lock
// that reports in is Active and wifi-capable by definition; the first
// sighting of a lock also leaves an audit entry.
type DeviceRegistry struct {
	store  store.DeviceStore
	audit  store.AuditLogStore
	logger *zap.Logger
}

func NewDeviceRegistry(st store.DeviceStore, audit store.AuditLogStore, logger *zap.Logger) *DeviceRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeviceRegistry{store: st, audit: audit, logger: logger}
}

// NoteSeen upserts the device for ev.  Errors are logged and returned so
// the caller can count them; they never stop event processing.
func (r *DeviceRegistry) NoteSeen(ctx context.Context, ev types.RawEvent) error {
	deviceID := strings.TrimSpace(ev.LockID)
	if deviceID == "" {
		return nil
	}
	seenAt := ev.Timestamp
	if seenAt.IsZero() {
		seenAt = time.Now().UTC()
	}

	created, err := r.store.UpsertDevice(ctx, store.DeviceSighting{
		DeviceID:    deviceID,
		MACAddress:  ev.LockMAC,
		WifiCapable: true,
		Status:      types.DeviceActive,
		BatteryPct:  ev.BatteryPct,
		SeenAt:      seenAt,
	})
	if err != nil {
		r.logger.Warn("device upsert failed", zap.String("device_id", deviceID), zap.Error(err))
		return err
	}
	if !created {
		return nil
	}

	r.logger.Info("device registered", zap.String("device_id", deviceID), zap.String("mac", ev.LockMAC))
	if r.audit == nil {
		return nil
	}
	if err := r.audit.InsertAuditLog(ctx, types.AuditEntry{
		Actor:    auditActor,
		Action:   types.AuditDeviceRegistered,
		Entity:   "device",
		EntityID: deviceID,
		Detail:   "first traffic from lock",
	}); err != nil {
		r.logger.Warn("device registration audit failed", zap.String("device_id", deviceID), zap.Error(err))
		return err
	}
	return nil
}
