package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/store"
	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/types"
)

type DeviceStore struct {
	mu      sync.RWMutex
	devices map[string]types.Device
}

func NewDeviceStore() *DeviceStore {
	return &DeviceStore{devices: make(map[string]types.Device)}
}

func (s *DeviceStore) UpsertDevice(_ context.Context, in store.DeviceSighting) (bool, error) {
	if in.SeenAt.IsZero() {
		in.SeenAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	d, exists := s.devices[in.DeviceID]
	if !exists {
		d = types.Device{ID: in.DeviceID, Name: fmt.Sprintf("Lock-%s", in.DeviceID)}
	}
	d.Status = in.Status
	d.WifiCapable = d.WifiCapable || in.WifiCapable
	if in.MACAddress != "" {
		d.MACAddress = in.MACAddress
	}
	if in.BatteryPct != nil {
		v := *in.BatteryPct
		d.BatteryPct = &v
	}
	d.LastSeenAt = in.SeenAt
	s.devices[in.DeviceID] = d
	return !exists, nil
}

func (s *DeviceStore) GetDevice(_ context.Context, deviceID string) (types.Device, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[deviceID]
	return d, ok, nil
}
