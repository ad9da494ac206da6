package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "github.com/BrandonDHaskell/Portunus/lockgate/internal/db"
	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/types"
)

type AuditLogStore struct {
	writer *dbpkg.Worker
}

func NewAuditLogStore(writer *dbpkg.Worker) *AuditLogStore {
	return &AuditLogStore{writer: writer}
}

func (s *AuditLogStore) InsertAuditLog(ctx context.Context, e types.AuditEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO audit_log(actor, action, entity, entity_id, detail, created_at_ms)
VALUES (?, ?, ?, ?, ?, ?);
`, e.Actor, e.Action, e.Entity, e.EntityID, e.Detail, e.CreatedAt.UTC().UnixMilli()); err != nil {
			return fmt.Errorf("InsertAuditLog: %w", err)
		}
		return nil
	})
}
