package sqlite_test

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/BrandonDHaskell/Portunus/lockgate/internal/db"
)

// openTestDB returns an in-memory SQLite connection with the same PRAGMAs
// and schema as production.  The connection is closed automatically when the
// test finishes.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	// Each test gets its own shared-cache in-memory database, kept alive
	// for the lifetime of the pool.
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf(
		"file:test_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)",
		name,
	)

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("openTestDB: sql.Open: %v", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if err := conn.Ping(); err != nil {
		conn.Close()
		t.Fatalf("openTestDB: ping: %v", err)
	}

	if _, err := db.Migrate(context.Background(), conn); err != nil {
		conn.Close()
		t.Fatalf("openTestDB: migrate: %v", err)
	}

	t.Cleanup(func() { conn.Close() })
	return conn
}

// newTestWriter returns a db.Worker backed by conn.  The worker is closed
// automatically when the test finishes.
func newTestWriter(t *testing.T, conn *sql.DB) *db.Worker {
	t.Helper()

	w := db.NewWorker(conn)
	t.Cleanup(func() { w.Close() })
	return w
}

func ptr[T any](v T) *T { return &v }

// seedFixture loads the standard fixture: a level-2 lobby zone bound to
// lock L1, a night-only vault zone bound to lock V1, and two users.
func seedFixture(t *testing.T, conn *sql.DB) {
	t.Helper()

	seed := db.Seed{
		Zones: []db.SeedZone{
			{ID: 1, Name: "Lobby", MinSecurityLevel: ptr(2)},
			{ID: 2, Name: "Vault", MinSecurityLevel: ptr(5), ScheduleStart: "22:00", ScheduleEnd: "06:00"},
		},
		Users: []db.SeedUser{
			{ID: 10, FirstName: "Ana", LastName: "Pérez", FingerprintID: "12345", AccessLevel: 3},
			{ID: 11, FirstName: "Luis", LastName: "Gómez", CardID: "CARD-99", AccessLevel: 5},
		},
		Locks: []db.SeedLock{
			{ID: "L1", ZoneID: ptr(int64(1))},
			{ID: "V1", ZoneID: ptr(int64(2))},
			{ID: "U1"},
		},
	}
	if err := db.SeedDev(context.Background(), conn, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}
}
