// Package service holds the access decision engine and the background
// loops that feed it.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/dedup"
	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/identity"
	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/policy"
	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/store"
	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/types"
	"github.com/BrandonDHaskell/Portunus/lockgate/internal/metrics"
)

var (
	ErrMalformedEvent = errors.New("lockId is required")
)

// Engine turns raw lock events into at most one access decision each.
//
// Webhook handlers and the poller call HandleLockEvent concurrently.  The
// only shared state is the dedup store, which is atomic per key.
type Engine struct {
	dedup      *dedup.Deduplicator
	resolver   *identity.Resolver
	zones      store.ZoneStore
	registry   *DeviceRegistry
	policy     *policy.Evaluator
	dispatcher *Dispatcher

	lookupTimeout time.Duration
	logger        *zap.Logger
	metrics       *metrics.Metrics
	newID         func() string
	now           func() time.Time
}

type EngineDeps struct {
	Dedup      *dedup.Deduplicator
	Resolver   *identity.Resolver
	Zones      store.ZoneStore
	Registry   *DeviceRegistry
	Policy     *policy.Evaluator
	Dispatcher *Dispatcher

	// LookupTimeout bounds the zone and identity lookups.  Defaults to 5s.
	LookupTimeout time.Duration
	Logger        *zap.Logger
	Metrics       *metrics.Metrics
}

func NewEngine(d EngineDeps) *Engine {
	if d.LookupTimeout <= 0 {
		d.LookupTimeout = 5 * time.Second
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Policy == nil {
		d.Policy = policy.NewEvaluator(time.Local)
	}
	return &Engine{
		dedup:         d.Dedup,
		resolver:      d.Resolver,
		zones:         d.Zones,
		registry:      d.Registry,
		policy:        d.Policy,
		dispatcher:    d.Dispatcher,
		lookupTimeout: d.LookupTimeout,
		logger:        d.Logger,
		metrics:       d.Metrics,
		newID:         uuid.NewString,
		now:           time.Now,
	}
}

// HandleLockEvent is the single entry point for webhook and poll traffic.
// It returns ErrMalformedEvent for an event without a lock id; every other
// event is acknowledged with Accepted set, whatever happens downstream.
func (e *Engine) HandleLockEvent(ctx context.Context, ev types.RawEvent) (types.HandleResult, error) {
	start := e.now()

	ev.LockID = strings.TrimSpace(ev.LockID)
	if ev.LockID == "" {
		return types.HandleResult{}, ErrMalformedEvent
	}
	if ev.Source == "" {
		ev.Source = types.SourceWebhook
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = start.UTC()
	}

	// No caller can cancel an event once received; only the per-call
	// timeouts below abort work.
	ctx = context.WithoutCancel(ctx)

	log := e.logger.With(zap.String("device_id", ev.LockID), zap.String("source", string(ev.Source)))

	accepted, err := e.dedup.AcceptRaw(ctx, ev.LockID)
	if err != nil {
		log.Warn("raw dedup check failed, accepting event", zap.Error(err))
		accepted = true
	}
	if !accepted {
		log.Debug("duplicate event dropped")
		return e.finish(start, ev, types.HandleResult{Accepted: true, Status: types.StatusDeduplicated}), nil
	}

	if e.registry != nil {
		_ = e.registry.NoteSeen(ctx, ev)
	}

	dec, identified := e.decide(ctx, log, ev)

	if !identified {
		suppressed, err := e.dedup.RecentlyAuthorized(ctx, ev.LockID)
		if err != nil {
			log.Warn("authorized suppression check failed", zap.Error(err))
		}
		if suppressed {
			log.Debug("no-identity event after authorization suppressed")
			return e.finish(start, ev, types.HandleResult{Accepted: true, Status: types.StatusDeduplicated}), nil
		}
		log.Info("event ignored: no identity resolved",
			zap.String("fingerprint_id", ev.FingerprintID),
			zap.String("card_number", ev.CardNumber),
			zap.String("credential_token", ev.CredentialToken),
		)
		return e.finish(start, ev, types.HandleResult{Accepted: true, Status: types.StatusIgnored, Decision: &dec}), nil
	}

	if dec.Authorized() {
		if err := e.dedup.MarkAuthorized(ctx, ev.LockID); err != nil {
			log.Warn("authorized mark failed", zap.Error(err))
		}
	}

	log.Info("access decision",
		zap.String("decision_id", dec.ID),
		zap.String("outcome", string(dec.Outcome)),
		zap.String("reason", dec.Reason()),
		zap.String("credential_kind", string(dec.CredentialKind)),
	)
	if e.metrics != nil {
		e.metrics.DecisionsTotal.WithLabelValues(string(dec.Outcome), dec.Reason()).Inc()
	}

	if e.dispatcher != nil {
		e.dispatcher.Dispatch(ctx, dec)
	}

	return e.finish(start, ev, types.HandleResult{Accepted: true, Status: types.StatusEmitted, Decision: &dec}), nil
}

// decide resolves the zone and the user and applies policy.  identified is
// false only when lookups succeeded and no user matched; a lookup failure
// yields an identified Denied("internal error") so it is still recorded.
func (e *Engine) decide(ctx context.Context, log *zap.Logger, ev types.RawEvent) (types.AccessDecision, bool) {
	dec := types.AccessDecision{
		ID:             e.newID(),
		DeviceID:       ev.LockID,
		CredentialKind: ev.EventType,
		Source:         ev.Source,
		OccurredAt:     ev.Timestamp.UTC(),
	}
	if dec.CredentialKind == "" {
		dec.CredentialKind = types.CredentialUnknown
	}
	if c := strings.TrimSpace(ev.CardNumber); c != "" {
		dec.CardNumber = &c
	}

	zone, zoneErr := e.lookupZone(ctx, ev.LockID)
	if zone != nil {
		id := zone.ID
		dec.ZoneID = &id
	}

	var (
		match    identity.Match
		found    bool
		matchErr error
	)
	if zoneErr == nil {
		lctx, cancel := context.WithTimeout(ctx, e.lookupTimeout)
		match, found, matchErr = e.resolver.ResolveEvent(lctx, ev)
		cancel()
	}

	if err := errors.Join(zoneErr, matchErr); err != nil {
		log.Error("lookup failed, denying event", zap.Error(err))
		reason := types.ReasonInternalError
		dec.Outcome = types.OutcomeDenied
		dec.DenialReason = &reason
		return dec, true
	}

	var user *types.User
	if found {
		u := match.User
		user = &u
		dec.UserID = &u.ID
		dec.UserName = u.DisplayName()
		dec.CredentialKind = match.Kind
	}

	res := e.policy.Evaluate(user, zone)
	if res.Authorized {
		dec.Outcome = types.OutcomeAuthorized
	} else {
		reason := res.Reason
		dec.Outcome = types.OutcomeDenied
		dec.DenialReason = &reason
	}
	return dec, found
}

func (e *Engine) lookupZone(ctx context.Context, deviceID string) (*types.Zone, error) {
	if e.zones == nil {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, e.lookupTimeout)
	defer cancel()
	z, ok, err := e.zones.ZoneForDevice(ctx, deviceID)
	if err != nil || !ok {
		return nil, err
	}
	return &z, nil
}

func (e *Engine) finish(start time.Time, ev types.RawEvent, res types.HandleResult) types.HandleResult {
	if e.metrics != nil {
		e.metrics.EventsTotal.WithLabelValues(string(ev.Source), string(res.Status)).Inc()
		e.metrics.EventDuration.Observe(e.now().Sub(start).Seconds())
	}
	return res
}
