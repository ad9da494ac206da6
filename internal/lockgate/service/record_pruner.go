package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/store"
	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/types"
	"github.com/BrandonDHaskell/Portunus/lockgate/internal/metrics"
)

// RetentionConfig bounds how long access records are kept.
type RetentionConfig struct {
	// Keep is measured against the event time of each record, not the time
	// it was written.  Zero keeps everything.
	Keep time.Duration
	// Every is the pass interval.  Defaults to 6h.
	Every time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// RetentionFromDays builds a RetentionConfig from operator-facing units.
func RetentionFromDays(days, everyHours int) RetentionConfig {
	return RetentionConfig{
		Keep:  time.Duration(days) * 24 * time.Hour,
		Every: time.Duration(everyHours) * time.Hour,
	}
}

// RecordPruner enforces the access-record retention window.  A pass that
// deletes anything leaves a RECORDS_PRUNED entry in the audit log.
type RecordPruner struct {
	records store.AccessRecordStore
	audit   store.AuditLogStore
	cfg     RetentionConfig
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRecordPruner(records store.AccessRecordStore, audit store.AuditLogStore, cfg RetentionConfig, logger *zap.Logger, m *metrics.Metrics) *RecordPruner {
	if cfg.Every <= 0 {
		cfg.Every = 6 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordPruner{
		records: records,
		audit:   audit,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		done:    make(chan struct{}),
	}
}

// Start runs a pass immediately and then every cfg.Every until ctx ends or
// Stop is called.  With retention disabled it returns without starting.
func (p *RecordPruner) Start(ctx context.Context) {
	if p.cfg.Keep <= 0 {
		p.logger.Info("access records kept forever; pruner idle")
		close(p.done)
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	go func() {
		defer close(p.done)
		p.run(ctx)
	}()

	p.logger.Info("access record retention enforced",
		zap.Duration("keep", p.cfg.Keep),
		zap.Duration("every", p.cfg.Every))
}

// Stop ends the loop and waits for an in-progress pass.  Safe to call more
// than once, and before Start.
func (p *RecordPruner) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-p.done
}

func (p *RecordPruner) run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Every)
	defer ticker.Stop()
	for {
		if _, err := p.PruneNow(ctx); err != nil && ctx.Err() == nil {
			p.logger.Error("access record pass failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Cutoff is the oldest event time a record may have and still be kept.
func (p *RecordPruner) Cutoff() time.Time {
	return p.cfg.Now().UTC().Add(-p.cfg.Keep)
}

// PruneNow runs one pass and returns the number of records deleted.  It
// is a no-op while retention is disabled.
func (p *RecordPruner) PruneNow(ctx context.Context) (int64, error) {
	if p.cfg.Keep <= 0 {
		return 0, nil
	}
	cutoff := p.Cutoff()
	deleted, err := p.records.PruneOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune access records before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	if deleted == 0 {
		return 0, nil
	}

	if p.metrics != nil {
		p.metrics.RecordsPruned.Add(float64(deleted))
	}
	p.logger.Info("access records pruned", zap.Int64("deleted", deleted), zap.Time("cutoff", cutoff))

	if p.audit != nil {
		if err := p.audit.InsertAuditLog(ctx, types.AuditEntry{
			Actor:    auditActor,
			Action:   types.AuditRecordsPruned,
			Entity:   "access_records",
			EntityID: cutoff.Format(time.RFC3339),
			Detail:   fmt.Sprintf("deleted=%d", deleted),
		}); err != nil {
			p.logger.Warn("prune audit failed", zap.Error(err))
		}
	}
	return deleted, nil
}
