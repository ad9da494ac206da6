package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/types"
	"github.com/BrandonDHaskell/Portunus/lockgate/internal/metrics"
)

// ErrCycleInFlight is returned by RunCycle while another cycle is running.
var ErrCycleInFlight = errors.New("poll cycle already in flight")

// RecordSource lists lock records newer than since.
type RecordSource interface {
	PollRecentRecords(ctx context.Context, lockID string, since time.Time) ([]types.RawEvent, error)
}

// EventHandler is implemented by Engine.
type EventHandler interface {
	HandleLockEvent(ctx context.Context, ev types.RawEvent) (types.HandleResult, error)
}

type PollerConfig struct {
	// Interval between cycles.  0 disables the poller.
	Interval time.Duration
	LockIDs  []string
	// Parallelism caps how many locks are polled at once.  Defaults to 4.
	Parallelism int
	// Lookback is how far back the first cycle reaches for a lock.
	// Defaults to Interval.
	Lookback time.Duration
	// Timeout bounds one lock's fetch.  Defaults to 10s.
	Timeout time.Duration
}

// Poller is the fallback channel for locks whose callbacks go missing.  It
// feeds polled records through the same entry point as the webhook, so the
// raw dedup window absorbs anything both channels deliver.
//
// At most one cycle runs at a time; a tick that arrives while a cycle is
// still running is skipped.
type Poller struct {
	source  RecordSource
	handler EventHandler
	cfg     PollerConfig
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	running atomic.Bool
	skipped atomic.Int64

	mu      sync.Mutex
	cursors map[string]time.Time

	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup
}

func NewPoller(source RecordSource, handler EventHandler, cfg PollerConfig, logger *zap.Logger, m *metrics.Metrics) *Poller {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = cfg.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		source:  source,
		handler: handler,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		now:     time.Now,
		cursors: make(map[string]time.Time),
		done:    make(chan struct{}),
	}
}

// Start begins the ticker loop.  It is a no-op when the interval is zero or
// there is nothing to poll.
func (p *Poller) Start(ctx context.Context) {
	if p.cfg.Interval <= 0 || len(p.cfg.LockIDs) == 0 {
		p.logger.Info("poller disabled", zap.Duration("interval", p.cfg.Interval), zap.Int("locks", len(p.cfg.LockIDs)))
		close(p.done)
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	go p.loop(ctx)

	p.logger.Info("poller started",
		zap.Duration("interval", p.cfg.Interval),
		zap.Strings("locks", p.cfg.LockIDs),
		zap.Int("parallelism", p.cfg.Parallelism))
}

// Stop ends the loop and waits for any in-flight cycle.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	<-p.done
	p.wg.Wait()
}

// Skipped reports how many ticks found a cycle still running.
func (p *Poller) Skipped() int64 { return p.skipped.Load() }

func (p *Poller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// tick starts a cycle in the background unless one is running.
func (p *Poller) tick(ctx context.Context) {
	if !p.running.CompareAndSwap(false, true) {
		p.noteSkipped()
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.running.Store(false)
		p.cycle(ctx)
	}()
}

// RunCycle runs one cycle synchronously.
func (p *Poller) RunCycle(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		p.noteSkipped()
		return ErrCycleInFlight
	}
	defer p.running.Store(false)
	return p.cycle(ctx)
}

func (p *Poller) noteSkipped() {
	p.skipped.Add(1)
	if p.metrics != nil {
		p.metrics.PollCyclesTotal.WithLabelValues("skipped").Inc()
	}
	p.logger.Debug("poll tick skipped, previous cycle still running")
}

func (p *Poller) cycle(ctx context.Context) error {
	// One lock failing must not cancel the others.
	var g errgroup.Group
	g.SetLimit(p.cfg.Parallelism)

	for _, lockID := range p.cfg.LockIDs {
		g.Go(func() error {
			if err := p.pollLock(ctx, lockID); err != nil {
				p.logger.Warn("poll failed", zap.String("device_id", lockID), zap.Error(err))
				return err
			}
			return nil
		})
	}

	err := g.Wait()
	result := "ok"
	if err != nil {
		result = "error"
		p.logger.Warn("poll cycle failed", zap.Error(err))
	}
	if p.metrics != nil {
		p.metrics.PollCyclesTotal.WithLabelValues(result).Inc()
	}
	return err
}

// pollLock fetches and handles one lock's new records, oldest first.
// Records at or before the cursor were handled by an earlier cycle.
func (p *Poller) pollLock(ctx context.Context, lockID string) error {
	since := p.cursor(lockID)

	fctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	events, err := p.source.PollRecentRecords(fctx, lockID, since)
	cancel()
	if err != nil {
		return err
	}

	latest := since
	for _, ev := range events {
		if !ev.Timestamp.After(since) {
			continue
		}
		ev.Source = types.SourcePoll
		if ev.LockID == "" {
			ev.LockID = lockID
		}
		if _, err := p.handler.HandleLockEvent(ctx, ev); err != nil {
			p.logger.Warn("polled record rejected", zap.String("device_id", lockID), zap.Error(err))
		}
		if ev.Timestamp.After(latest) {
			latest = ev.Timestamp
		}
	}
	p.setCursor(lockID, latest)
	return nil
}

func (p *Poller) cursor(lockID string) time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.cursors[lockID]; ok {
		return c
	}
	c := p.now().Add(-p.cfg.Lookback)
	p.cursors[lockID] = c
	return c
}

func (p *Poller) setCursor(lockID string, t time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t.After(p.cursors[lockID]) {
		p.cursors[lockID] = t
	}
}
