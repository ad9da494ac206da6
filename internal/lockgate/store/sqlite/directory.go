package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/types"
)

// Directory reads users and zones.  It never writes, so it queries the
// connection directly instead of going through the writer.
type Directory struct {
	db *sql.DB
}

func NewDirectory(db *sql.DB) *Directory {
	return &Directory{db: db}
}

const userColumns = `user_id, first_name, last_name, fingerprint_id, card_id, access_level`

func (d *Directory) FindUserByFingerprint(ctx context.Context, fingerprintID string) (types.User, bool, error) {
	return d.findUser(ctx, "FindUserByFingerprint", `
SELECT `+userColumns+` FROM users
WHERE fingerprint_id = ?
ORDER BY user_id LIMIT 1;
`, fingerprintID)
}

func (d *Directory) FindUserByCard(ctx context.Context, cardID string) (types.User, bool, error) {
	return d.findUser(ctx, "FindUserByCard", `
SELECT `+userColumns+` FROM users
WHERE card_id = ?
ORDER BY user_id LIMIT 1;
`, cardID)
}

// FindUserByName matches the trimmed "first last" concatenation exactly.
func (d *Directory) FindUserByName(ctx context.Context, displayName string) (types.User, bool, error) {
	return d.findUser(ctx, "FindUserByName", `
SELECT `+userColumns+` FROM users
WHERE TRIM(TRIM(first_name) || ' ' || TRIM(last_name)) = ?
ORDER BY user_id LIMIT 1;
`, displayName)
}

func (d *Directory) findUser(ctx context.Context, op, query string, arg string) (types.User, bool, error) {
	var (
		u           types.User
		fingerprint sql.NullString
		card        sql.NullString
	)
	err := d.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.FirstName, &u.LastName, &fingerprint, &card, &u.AccessLevel,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return types.User{}, false, nil
	}
	if err != nil {
		return types.User{}, false, fmt.Errorf("%s: %w", op, err)
	}
	u.FingerprintID = fingerprint.String
	u.CardID = card.String
	return u, true, nil
}

func (d *Directory) ZoneForDevice(ctx context.Context, deviceID string) (types.Zone, bool, error) {
	var (
		z     types.Zone
		start sql.NullInt64
		end   sql.NullInt64
	)
	err := d.db.QueryRowContext(ctx, `
SELECT z.zone_id, z.name, z.min_security_level, z.schedule_start_s, z.schedule_end_s, z.description
FROM devices d
JOIN zones z ON z.zone_id = d.zone_id
WHERE d.device_id = ?;
`, deviceID).Scan(&z.ID, &z.Name, &z.MinSecurityLevel, &start, &end, &z.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Zone{}, false, nil
	}
	if err != nil {
		return types.Zone{}, false, fmt.Errorf("ZoneForDevice: %w", err)
	}
	if start.Valid {
		v := types.TimeOfDay(start.Int64)
		z.ScheduleStart = &v
	}
	if end.Valid {
		v := types.TimeOfDay(end.Int64)
		z.ScheduleEnd = &v
	}
	return z, true, nil
}
