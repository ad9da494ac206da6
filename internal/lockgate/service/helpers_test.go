package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/dedup"
	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/identity"
	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/notify"
	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/policy"
	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/service"
	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/store"
	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/store/memory"
	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/types"
	"github.com/BrandonDHaskell/Portunus/lockgate/internal/metrics"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingPublisher captures every notification.
type recordingPublisher struct {
	mu   sync.Mutex
	msgs []any
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, msg any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return p.err
}

func (p *recordingPublisher) attempts() []notify.AccessAttempt {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []notify.AccessAttempt
	for _, m := range p.msgs {
		if a, ok := m.(notify.AccessAttempt); ok {
			out = append(out, a)
		}
	}
	return out
}

func (p *recordingPublisher) unlocks() []notify.UnlockCommand {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []notify.UnlockCommand
	for _, m := range p.msgs {
		if u, ok := m.(notify.UnlockCommand); ok {
			out = append(out, u)
		}
	}
	return out
}

type fakeUnlocker struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (u *fakeUnlocker) Unlock(_ context.Context, lockID string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls = append(u.calls, lockID)
	return u.err
}

func (u *fakeUnlocker) Calls() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.calls...)
}

var errStoreDown = errors.New("store down")

type failingRecords struct{}

func (failingRecords) InsertAccessRecord(context.Context, types.AccessDecision) error {
	return errStoreDown
}

func (failingRecords) PruneOlderThan(context.Context, time.Time) (int64, error) {
	return 0, errStoreDown
}

type failingZones struct{}

func (failingZones) ZoneForDevice(context.Context, string) (types.Zone, bool, error) {
	return types.Zone{}, false, errStoreDown
}

type harnessOpts struct {
	hasGateway bool
	records    store.AccessRecordStore
	zones      store.ZoneStore
	unlockErr  error
}

type harness struct {
	engine   *service.Engine
	dir      *memory.Directory
	devices  *memory.DeviceStore
	records  *memory.AccessRecordStore
	audit    *memory.AuditLogStore
	bus      *recordingPublisher
	unlocker *fakeUnlocker
	clock    *fakeClock
	logs     *observer.ObservedLogs
	metrics  *metrics.Metrics
}

// newHarness wires an engine over in-memory stores.  The fixture has user
// 1 (fingerprint 12345, level 3) and user 2 (card 99, level 1); lock L1 is
// bound to zone 1 (min level 2) and L2 to zone 2 (min level 1).  The clock
// starts at noon UTC.
func newHarness(t *testing.T, opts harnessOpts) *harness {
	t.Helper()

	h := &harness{
		dir:      memory.NewDirectory(),
		devices:  memory.NewDeviceStore(),
		records:  memory.NewAccessRecordStore(),
		audit:    memory.NewAuditLogStore(),
		bus:      &recordingPublisher{},
		unlocker: &fakeUnlocker{err: opts.unlockErr},
		clock:    &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		metrics:  metrics.New(),
	}
	h.dir.AddUser(types.User{ID: 1, FirstName: "Ana", LastName: "Pérez", FingerprintID: "12345", AccessLevel: 3})
	h.dir.AddUser(types.User{ID: 2, FirstName: "Luis", LastName: "Gómez", CardID: "99", AccessLevel: 1})
	h.dir.AddZone(types.Zone{ID: 1, Name: "Lab", MinSecurityLevel: 2})
	h.dir.AddZone(types.Zone{ID: 2, Name: "Lobby", MinSecurityLevel: 1})
	h.dir.BindDevice("L1", 1)
	h.dir.BindDevice("L2", 2)

	core, logs := observer.New(zap.DebugLevel)
	h.logs = logs
	logger := zap.New(core)

	var records store.AccessRecordStore = h.records
	if opts.records != nil {
		records = opts.records
	}
	var zones store.ZoneStore = h.dir
	if opts.zones != nil {
		zones = opts.zones
	}

	dispatcher := service.NewDispatcher(records, h.audit, h.bus, h.unlocker,
		service.DispatcherConfig{HasGateway: opts.hasGateway, Timeout: time.Second}, logger, h.metrics)

	h.engine = service.NewEngine(service.EngineDeps{
		Dedup:         dedup.New(dedup.NewMemoryStoreWithClock(h.clock.Now), 3*time.Second, 5*time.Second),
		Resolver:      identity.NewResolver(h.dir),
		Zones:         zones,
		Registry:      service.NewDeviceRegistry(h.devices, h.audit, logger),
		Policy:        &policy.Evaluator{Now: h.clock.Now, Location: time.UTC},
		Dispatcher:    dispatcher,
		LookupTimeout: time.Second,
		Logger:        logger,
		Metrics:       h.metrics,
	})
	return h
}

func (h *harness) handle(t *testing.T, ev types.RawEvent) types.HandleResult {
	t.Helper()
	res, err := h.engine.HandleLockEvent(context.Background(), ev)
	if err != nil {
		t.Fatalf("HandleLockEvent(%+v): %v", ev, err)
	}
	if !res.Accepted {
		t.Fatalf("HandleLockEvent(%+v): not accepted", ev)
	}
	return res
}

func (h *harness) auditActions() []string {
	var out []string
	for _, e := range h.audit.Entries() {
		out = append(out, e.Action)
	}
	return out
}

func countAction(actions []string, action string) int {
	n := 0
	for _, a := range actions {
		if a == action {
			n++
		}
	}
	return n
}
