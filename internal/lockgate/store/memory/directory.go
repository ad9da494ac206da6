package memory

import (
	"context"
	"sync"

	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/types"
)

// Directory holds users, zones and device-to-zone bindings in memory.  It
// is intended for tests and dev environments.
type Directory struct {
	mu       sync.RWMutex
	users    []types.User
	zones    map[int64]types.Zone
	bindings map[string]int64
}

func NewDirectory() *Directory {
	return &Directory{
		zones:    make(map[int64]types.Zone),
		bindings: make(map[string]int64),
	}
}

// AddUser appends a user.  Lookups return the earliest matching user, so
// insertion order is the tie-breaker.
func (d *Directory) AddUser(u types.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users = append(d.users, u)
}

func (d *Directory) AddZone(z types.Zone) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.zones[z.ID] = z
}

// BindDevice assigns a device to a zone.
func (d *Directory) BindDevice(deviceID string, zoneID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bindings[deviceID] = zoneID
}

func (d *Directory) FindUserByFingerprint(_ context.Context, fingerprintID string) (types.User, bool, error) {
	return d.find(func(u types.User) bool { return u.FingerprintID != "" && u.FingerprintID == fingerprintID })
}

func (d *Directory) FindUserByCard(_ context.Context, cardID string) (types.User, bool, error) {
	return d.find(func(u types.User) bool { return u.CardID != "" && u.CardID == cardID })
}

func (d *Directory) FindUserByName(_ context.Context, displayName string) (types.User, bool, error) {
	return d.find(func(u types.User) bool { return u.DisplayName() == displayName })
}

func (d *Directory) find(match func(types.User) bool) (types.User, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, u := range d.users {
		if match(u) {
			return u, true, nil
		}
	}
	return types.User{}, false, nil
}

func (d *Directory) ZoneForDevice(_ context.Context, deviceID string) (types.Zone, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	zid, ok := d.bindings[deviceID]
	if !ok {
		return types.Zone{}, false, nil
	}
	z, ok := d.zones[zid]
	return z, ok, nil
}
