package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/erp/backoffice/internal/domain/billing"
	"go.uber.org/zap"
)

// ScopeSource lists the scopes whose ledger changed since a point in time
type ScopeSource interface {
	ChangedScopes(ctx context.Context, since time.Time, limit int) ([]billing.ScopeChange, error)
}

// SweepConfig holds configuration for the sweep trigger
type SweepConfig struct {
	Interval  time.Duration // time between sweeps
	Lookback  time.Duration // window of the first sweep
	BatchSize int           // max scopes per sweep, 0 for no limit
}

// DefaultSweepConfig returns default sweep configuration
func DefaultSweepConfig() SweepConfig {
	return SweepConfig{
		Interval:  5 * time.Minute,
		Lookback:  time.Hour,
		BatchSize: 500,
	}
}

// SweepTrigger periodically queues resync jobs for recently changed scopes
type SweepTrigger struct {
	config    SweepConfig
	scheduler *Scheduler
	source    ScopeSource
	logger    *zap.Logger
	now       func() time.Time

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	lastSweep time.Time
}

// NewSweepTrigger creates a new sweep trigger
func NewSweepTrigger(config SweepConfig, scheduler *Scheduler, source ScopeSource, logger *zap.Logger) *SweepTrigger {
	if config.Interval <= 0 {
		config.Interval = DefaultSweepConfig().Interval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SweepTrigger{
		config:    config,
		scheduler: scheduler,
		source:    source,
		logger:    logger,
		now:       time.Now,
	}
}

// Start starts the sweep loop
func (t *SweepTrigger) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = true
	t.lastSweep = t.now().Add(-t.config.Lookback)
	t.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.wg.Add(1)
	go t.runLoop(ctx)

	t.logger.Info("Resync sweep started",
		zap.Duration("interval", t.config.Interval),
		zap.Duration("lookback", t.config.Lookback),
	)
	return nil
}

// Stop stops the sweep loop
func (t *SweepTrigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = false
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("Resync sweep stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *SweepTrigger) runLoop(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := t.Sweep(ctx); err != nil && ctx.Err() == nil {
				t.logger.Error("Resync sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep queues a job for every scope changed since the previous sweep and
// returns how many were queued. A complete sweep moves the window to its
// start time. A sweep cut short by the batch limit or a full queue moves it
// only to the last queued change, so skipped scopes come back next time.
func (t *SweepTrigger) Sweep(ctx context.Context) (int, error) {
	t.mu.Lock()
	since := t.lastSweep
	t.mu.Unlock()
	started := t.now()

	changes, err := t.source.ChangedScopes(ctx, since, t.config.BatchSize)
	if err != nil {
		return 0, err
	}

	truncated := t.config.BatchSize > 0 && len(changes) == t.config.BatchSize
	if truncated {
		t.logger.Warn("Resync sweep hit its batch limit, continuing next sweep",
			zap.Int("batch_size", t.config.BatchSize),
			zap.Time("since", since),
		)
	}

	queued := 0
	for _, change := range changes {
		if _, err := t.scheduler.Submit(change.Scope); err != nil {
			if !errors.Is(err, ErrJobQueueFull) {
				return queued, err
			}
			t.logger.Warn("Resync queue full, skipping remaining scopes",
				zap.Int("queued", queued),
				zap.Int("skipped", len(changes)-queued),
			)
			truncated = true
			break
		}
		queued++
	}

	next := started
	if truncated {
		next = since
		if queued > 0 {
			next = changes[queued-1].ChangedAt
		}
	}
	t.mu.Lock()
	t.lastSweep = next
	t.mu.Unlock()

	if queued > 0 {
		t.logger.Info("Resync sweep queued scopes",
			zap.Int("count", queued),
			zap.Time("since", since),
		)
	}
	return queued, nil
}
