package dedup_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/dedup"
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

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

// ═══════════════════════════════════════════════════════════════════════════
// MemoryStore
// ═══════════════════════════════════════════════════════════════════════════

func TestMemory_RawWindow(t *testing.T) {
	clock := newClock()
	d := dedup.New(dedup.NewMemoryStoreWithClock(clock.Now), 3*time.Second, 5*time.Second)
	ctx := context.Background()

	if ok, _ := d.AcceptRaw(ctx, "L1"); !ok {
		t.Fatal("first event must be accepted")
	}
	clock.Advance(time.Second)
	if ok, _ := d.AcceptRaw(ctx, "L1"); ok {
		t.Fatal("event 1s later must be dropped")
	}
	if ok, _ := d.AcceptRaw(ctx, "L2"); !ok {
		t.Fatal("other device must not be affected")
	}

	// Dropped events do not extend the window: 3s after the accepted one.
	clock.Advance(2 * time.Second)
	if ok, _ := d.AcceptRaw(ctx, "L1"); !ok {
		t.Fatal("event at the window edge must be accepted")
	}
}

func TestMemory_AuthorizedWindow(t *testing.T) {
	clock := newClock()
	d := dedup.New(dedup.NewMemoryStoreWithClock(clock.Now), 3*time.Second, 5*time.Second)
	ctx := context.Background()

	if ok, _ := d.RecentlyAuthorized(ctx, "L1"); ok {
		t.Fatal("nothing authorized yet")
	}
	_ = d.MarkAuthorized(ctx, "L1")

	clock.Advance(2 * time.Second)
	if ok, _ := d.RecentlyAuthorized(ctx, "L1"); !ok {
		t.Error("expected suppression at T+2s")
	}
	clock.Advance(8 * time.Second)
	if ok, _ := d.RecentlyAuthorized(ctx, "L1"); ok {
		t.Error("expected no suppression at T+10s")
	}
}

func TestMemory_BoundedByDistinctKeys(t *testing.T) {
	clock := newClock()
	s := dedup.NewMemoryStoreWithClock(clock.Now)
	d := dedup.New(s, time.Second, time.Second)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		clock.Advance(2 * time.Second)
		_, _ = d.AcceptRaw(ctx, "L1")
		_ = d.MarkAuthorized(ctx, "L1")
	}
	if s.Len() != 2 {
		t.Errorf("expected 2 keys, got %d", s.Len())
	}
}

func TestMemory_CheckAndMarkIsAtomic(t *testing.T) {
	d := dedup.New(dedup.NewMemoryStore(), time.Minute, time.Minute)
	ctx := context.Background()

	var accepted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := d.AcceptRaw(ctx, "L1"); ok {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()

	if n := accepted.Load(); n != 1 {
		t.Fatalf("expected exactly one accepted event, got %d", n)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// RedisStore
// ═══════════════════════════════════════════════════════════════════════════

func newRedis(t *testing.T) (*miniredis.Miniredis, *dedup.RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, dedup.NewRedisStore(client)
}

func TestRedis_RawWindow(t *testing.T) {
	mr, s := newRedis(t)
	d := dedup.New(s, 3*time.Second, 5*time.Second)
	ctx := context.Background()

	if ok, err := d.AcceptRaw(ctx, "L1"); err != nil || !ok {
		t.Fatalf("first: ok=%v err=%v", ok, err)
	}
	if ok, err := d.AcceptRaw(ctx, "L1"); err != nil || ok {
		t.Fatalf("second: ok=%v err=%v", ok, err)
	}

	mr.FastForward(3 * time.Second)
	if ok, err := d.AcceptRaw(ctx, "L1"); err != nil || !ok {
		t.Fatalf("after window: ok=%v err=%v", ok, err)
	}
}

func TestRedis_AuthorizedWindow(t *testing.T) {
	mr, s := newRedis(t)
	d := dedup.New(s, 3*time.Second, 5*time.Second)
	ctx := context.Background()

	if err := d.MarkAuthorized(ctx, "L1"); err != nil {
		t.Fatalf("MarkAuthorized: %v", err)
	}
	if !mr.Exists("lockgate:dedup:authorized:L1") {
		t.Fatal("expected prefixed key in redis")
	}

	mr.FastForward(2 * time.Second)
	if ok, _ := d.RecentlyAuthorized(ctx, "L1"); !ok {
		t.Error("expected suppression at T+2s")
	}
	mr.FastForward(8 * time.Second)
	if ok, _ := d.RecentlyAuthorized(ctx, "L1"); ok {
		t.Error("expected no suppression at T+10s")
	}
}

func TestRedis_ErrorsSurface(t *testing.T) {
	mr, s := newRedis(t)
	mr.Close()

	if _, err := s.CheckAndMark(context.Background(), "raw:L1", time.Second); err == nil {
		t.Fatal("expected error with redis down")
	}
}
