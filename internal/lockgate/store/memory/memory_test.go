package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/store"
	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/store/memory"
	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/types"
)

func TestDirectory_FirstMatchWins(t *testing.T) {
	d := memory.NewDirectory()
	d.AddUser(types.User{ID: 1, FirstName: "Ana", LastName: "Pérez", CardID: "C1"})
	d.AddUser(types.User{ID: 2, FirstName: "Ana", LastName: "Pérez", CardID: "C1"})

	u, ok, _ := d.FindUserByCard(context.Background(), "C1")
	if !ok || u.ID != 1 {
		t.Errorf("card: got %d ok=%v, want 1", u.ID, ok)
	}
	u, ok, _ = d.FindUserByName(context.Background(), "Ana Pérez")
	if !ok || u.ID != 1 {
		t.Errorf("name: got %d ok=%v, want 1", u.ID, ok)
	}
	if _, ok, _ := d.FindUserByFingerprint(context.Background(), ""); ok {
		t.Error("empty fingerprint must not match users without one")
	}
}

func TestDirectory_ZoneForDevice(t *testing.T) {
	d := memory.NewDirectory()
	d.AddZone(types.Zone{ID: 3, Name: "Lab", MinSecurityLevel: 2})
	d.BindDevice("L1", 3)
	d.BindDevice("L2", 99)

	if z, ok, _ := d.ZoneForDevice(context.Background(), "L1"); !ok || z.Name != "Lab" {
		t.Errorf("L1: %+v ok=%v", z, ok)
	}
	if _, ok, _ := d.ZoneForDevice(context.Background(), "L2"); ok {
		t.Error("binding to a missing zone must miss")
	}
	if _, ok, _ := d.ZoneForDevice(context.Background(), "L3"); ok {
		t.Error("unbound device must miss")
	}
}

func TestDeviceStore_Upsert(t *testing.T) {
	s := memory.NewDeviceStore()
	ctx := context.Background()

	created, _ := s.UpsertDevice(ctx, store.DeviceSighting{DeviceID: "9", MACAddress: "M", WifiCapable: true, Status: types.DeviceActive})
	if !created {
		t.Fatal("expected created")
	}
	created, _ = s.UpsertDevice(ctx, store.DeviceSighting{DeviceID: "9", Status: types.DeviceActive})
	if created {
		t.Fatal("expected update")
	}

	d, ok, _ := s.GetDevice(ctx, "9")
	if !ok || d.Name != "Lock-9" || d.MACAddress != "M" || !d.WifiCapable {
		t.Errorf("device = %+v", d)
	}
}

func TestAccessRecordStore_Prune(t *testing.T) {
	s := memory.NewAccessRecordStore()
	ctx := context.Background()
	now := time.Now()

	_ = s.InsertAccessRecord(ctx, types.AccessDecision{ID: "old", OccurredAt: now.Add(-48 * time.Hour)})
	_ = s.InsertAccessRecord(ctx, types.AccessDecision{ID: "new", OccurredAt: now})

	n, err := s.PruneOlderThan(ctx, now.Add(-24*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("PruneOlderThan: n=%d err=%v", n, err)
	}
	if recs := s.Records(); len(recs) != 1 || recs[0].ID != "new" {
		t.Errorf("records = %+v", recs)
	}
}
