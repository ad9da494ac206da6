package db

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/types"
)

// Seed describes fixture users, zones and device bindings for dev and test
// databases.  Administrative CRUD is out of scope for the server, so this is
// the only way rows get into users/zones outside of direct SQL.
type Seed struct {
	Zones []SeedZone `yaml:"zones"`
	Users []SeedUser `yaml:"users"`
	Locks []SeedLock `yaml:"locks"`
}

type SeedZone struct {
	ID               int64  `yaml:"id"`
	Name             string `yaml:"name"`
	MinSecurityLevel *int   `yaml:"min_security_level"`
	ScheduleStart    string `yaml:"schedule_start"`
	ScheduleEnd      string `yaml:"schedule_end"`
	Description      string `yaml:"description"`
}

type SeedUser struct {
	ID            int64  `yaml:"id"`
	FirstName     string `yaml:"first_name"`
	LastName      string `yaml:"last_name"`
	FingerprintID string `yaml:"fingerprint_id"`
	CardID        string `yaml:"card_id"`
	AccessLevel   int    `yaml:"access_level"`
}

type SeedLock struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	ZoneID *int64 `yaml:"zone_id"`
}

// LoadSeedFile parses a YAML seed file.
func LoadSeedFile(path string) (Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return Seed{}, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return DecodeSeed(f)
}

func DecodeSeed(r io.Reader) (Seed, error) {
	var s Seed
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && err != io.EOF {
		return Seed{}, fmt.Errorf("decode seed: %w", err)
	}
	return s, nil
}

// DefaultSeed is the starter fixture used when no seed file is configured
// in dev: one always-open zone bound to one lock.
func DefaultSeed() Seed {
	zone := int64(1)
	return Seed{
		Zones: []SeedZone{{ID: zone, Name: "Main Entrance", Description: "Dev"}},
		Locks: []SeedLock{{ID: "lock-001", Name: "Main Entrance", ZoneID: &zone}},
	}
}

// SeedDev upserts the fixture rows.  Re-running it is safe.
func SeedDev(ctx context.Context, db *sql.DB, seed Seed) error {
	now := time.Now().UTC().UnixMilli()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("seed begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, z := range seed.Zones {
		if err := seedZone(ctx, tx, z, now); err != nil {
			return err
		}
	}
	for _, u := range seed.Users {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO users(user_id, first_name, last_name, fingerprint_id, card_id, access_level, created_at_ms, updated_at_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(user_id) DO UPDATE SET
  first_name = excluded.first_name,
  last_name = excluded.last_name,
  fingerprint_id = excluded.fingerprint_id,
  card_id = excluded.card_id,
  access_level = excluded.access_level,
  updated_at_ms = excluded.updated_at_ms;
`, u.ID, u.FirstName, u.LastName, nullString(u.FingerprintID), nullString(u.CardID), u.AccessLevel, now, now); err != nil {
			return fmt.Errorf("seed user %d: %w", u.ID, err)
		}
	}
	for _, l := range seed.Locks {
		name := l.Name
		if name == "" {
			name = "Lock-" + l.ID
		}
		var zoneID any
		if l.ZoneID != nil {
			zoneID = *l.ZoneID
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO devices(device_id, zone_id, name, status, created_at_ms, updated_at_ms)
VALUES (?, ?, ?, 'Active', ?, ?)
ON CONFLICT(device_id) DO UPDATE SET
  zone_id = excluded.zone_id,
  name = excluded.name,
  updated_at_ms = excluded.updated_at_ms;
`, l.ID, zoneID, name, now, now); err != nil {
			return fmt.Errorf("seed lock %s: %w", l.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed commit: %w", err)
	}
	return nil
}

func seedZone(ctx context.Context, tx *sql.Tx, z SeedZone, now int64) error {
	minLevel := 1
	if z.MinSecurityLevel != nil {
		minLevel = *z.MinSecurityLevel
	}
	start, err := optionalTimeOfDay(z.ScheduleStart)
	if err != nil {
		return fmt.Errorf("seed zone %d: %w", z.ID, err)
	}
	end, err := optionalTimeOfDay(z.ScheduleEnd)
	if err != nil {
		return fmt.Errorf("seed zone %d: %w", z.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO zones(zone_id, name, min_security_level, schedule_start_s, schedule_end_s, description, created_at_ms, updated_at_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(zone_id) DO UPDATE SET
  name = excluded.name,
  min_security_level = excluded.min_security_level,
  schedule_start_s = excluded.schedule_start_s,
  schedule_end_s = excluded.schedule_end_s,
  description = excluded.description,
  updated_at_ms = excluded.updated_at_ms;
`, z.ID, z.Name, minLevel, start, end, z.Description, now, now); err != nil {
		return fmt.Errorf("seed zone %d: %w", z.ID, err)
	}
	return nil
}

func optionalTimeOfDay(s string) (any, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := types.ParseTimeOfDay(s)
	if err != nil {
		return nil, err
	}
	return int(t), nil
}

func nullString(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return s
}
