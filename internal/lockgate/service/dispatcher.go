package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/notify"
	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/store"
	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/types"
	"github.com/BrandonDHaskell/Portunus/lockgate/internal/metrics"
)

const auditActor = "lockgate"

const (
	transportCloud  = "cloud"
	transportBridge = "bridge"
)

// Unlocker opens a lock through the vendor cloud.
type Unlocker interface {
	Unlock(ctx context.Context, lockID string) error
}

// Publisher delivers a notification to every connected observer.
type Publisher interface {
	Publish(ctx context.Context, key string, msg any) error
}

type DispatcherConfig struct {
	// HasGateway routes unlocks through the vendor cloud instead of the
	// local bridge.
	HasGateway bool
	// Bridge carries unlock commands to the local bridge.  Nil falls back
	// to the notification publisher.
	Bridge Publisher
	// Timeout bounds each side effect.  Defaults to 5s.
	Timeout time.Duration
}

// Dispatcher runs the side effects of an emitted decision.  Persist and
// notify run alongside the unlock; failures are logged and counted.
type Dispatcher struct {
	records   store.AccessRecordStore
	audit     store.AuditLogStore
	publisher Publisher
	unlocker  Unlocker
	cfg       DispatcherConfig
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

func NewDispatcher(
	records store.AccessRecordStore,
	audit store.AuditLogStore,
	publisher Publisher,
	unlocker Unlocker,
	cfg DispatcherConfig,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Bridge == nil && publisher != nil {
		cfg.Bridge = publisher
	}
	return &Dispatcher{
		records:   records,
		audit:     audit,
		publisher: publisher,
		unlocker:  unlocker,
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
	}
}

// Dispatch never returns an error: the decision is final by the time it
// gets here and nothing downstream can change it.
func (d *Dispatcher) Dispatch(ctx context.Context, dec types.AccessDecision) {
	// Side effects run to completion even if the inbound request goes away.
	ctx = context.WithoutCancel(ctx)

	log := d.logger.With(
		zap.String("decision_id", dec.ID),
		zap.String("device_id", dec.DeviceID),
		zap.String("outcome", string(dec.Outcome)),
	)

	var g errgroup.Group
	g.Go(func() error {
		if err := d.step(ctx, func(ctx context.Context) error {
			return d.records.InsertAccessRecord(ctx, dec)
		}); err != nil {
			log.Error("access record persist failed", zap.Error(err))
			d.failed("persist")
		}
		return nil
	})
	if d.publisher != nil {
		g.Go(func() error {
			if err := d.step(ctx, func(ctx context.Context) error {
				return d.publisher.Publish(ctx, dec.DeviceID, notify.NewAccessAttempt(dec))
			}); err != nil {
				log.Warn("access notification failed", zap.Error(err))
				d.failed("notify")
			}
			return nil
		})
	}

	if dec.Authorized() && dec.UserID != nil {
		d.unlock(ctx, log, dec)
	}
	_ = g.Wait()
}

func (d *Dispatcher) unlock(ctx context.Context, log *zap.Logger, dec types.AccessDecision) {
	transport, action := transportBridge, types.AuditUnlockBridge
	var err error
	if d.cfg.HasGateway && d.unlocker != nil {
		transport, action = transportCloud, types.AuditUnlockCloud
		err = d.step(ctx, func(ctx context.Context) error {
			return d.unlocker.Unlock(ctx, dec.DeviceID)
		})
	} else if d.cfg.Bridge != nil {
		err = d.step(ctx, func(ctx context.Context) error {
			return d.cfg.Bridge.Publish(ctx, dec.DeviceID, notify.NewUnlockCommand(dec.DeviceID, *dec.UserID))
		})
	} else {
		err = fmt.Errorf("no unlock transport configured")
	}

	result := "ok"
	detail := fmt.Sprintf("user=%d decision=%s", *dec.UserID, dec.ID)
	if err != nil {
		result = "error"
		detail += " error=" + err.Error()
		log.Error("unlock failed", zap.String("transport", transport), zap.Error(err))
		d.failed("unlock")
	} else {
		log.Info("unlock requested", zap.String("transport", transport), zap.Int64("user_id", *dec.UserID))
	}
	if d.metrics != nil {
		d.metrics.UnlocksTotal.WithLabelValues(transport, result).Inc()
	}

	if d.audit == nil {
		return
	}
	if err := d.step(ctx, func(ctx context.Context) error {
		return d.audit.InsertAuditLog(ctx, types.AuditEntry{
			Actor:    auditActor,
			Action:   action,
			Entity:   "device",
			EntityID: dec.DeviceID,
			Detail:   detail,
		})
	}); err != nil {
		log.Warn("unlock audit failed", zap.Error(err))
		d.failed("audit")
	}
}

func (d *Dispatcher) step(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()
	return fn(ctx)
}

func (d *Dispatcher) failed(step string) {
	if d.metrics != nil {
		d.metrics.SideEffectFailures.WithLabelValues(step).Inc()
	}
}
