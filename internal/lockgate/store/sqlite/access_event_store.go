package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "github.com/BrandonDHaskell/Portunus/lockgate/internal/db"
	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/types"
)

type AccessRecordStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewAccessRecordStore(db *sql.DB, writer *dbpkg.Worker) *AccessRecordStore {
	return &AccessRecordStore{db: db, writer: writer}
}

func (s *AccessRecordStore) InsertAccessRecord(ctx context.Context, d types.AccessDecision) error {
	if d.ID == "" {
		return fmt.Errorf("InsertAccessRecord: decision id is required")
	}
	occurred := d.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	occurredMs := occurred.UTC().UnixMilli()
	recordedMs := time.Now().UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO access_records(
  decision_id, user_id, zone_id, device_id, credential_kind, outcome,
  denial_reason, card_number, source, occurred_at_ms, recorded_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
			d.ID, nullInt64(d.UserID), nullInt64(d.ZoneID), d.DeviceID, string(d.CredentialKind), string(d.Outcome),
			nullString(d.DenialReason), nullString(d.CardNumber), string(d.Source), occurredMs, recordedMs,
		); err != nil {
			return fmt.Errorf("InsertAccessRecord: %w", err)
		}
		return nil
	})
}

// PruneOlderThan deletes access records that occurred before cutoff and
// returns the number of rows deleted.
//
// Uses idx_access_records_time for the range scan.
func (s *AccessRecordStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoffMs := cutoff.UTC().UnixMilli()

	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
DELETE FROM access_records
WHERE occurred_at_ms < ?;
`, cutoffMs)
		if err != nil {
			return fmt.Errorf("PruneOlderThan: %w", err)
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	return deleted, err
}

func nullInt64(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
