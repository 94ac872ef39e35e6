package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sweep is one periodic maintenance pass.
type Sweep func(ctx context.Context)

// IntervalTrigger runs a sweep on a fixed cadence. The first pass runs
// shortly after start so a restarted service does not wait a full interval.
type IntervalTrigger struct {
	name     string
	interval time.Duration
	startup  time.Duration
	sweep    Sweep
	logger   *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewIntervalTrigger creates a trigger that runs sweep every interval
func NewIntervalTrigger(name string, interval time.Duration, sweep Sweep, logger *zap.Logger) *IntervalTrigger {
	return &IntervalTrigger{
		name:     name,
		interval: interval,
		startup:  10 * time.Second,
		sweep:    sweep,
		logger:   logger.Named(name),
	}
}

// Start starts the trigger
func (t *IntervalTrigger) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = true
	t.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.wg.Add(1)
	go t.runLoop(ctx)

	t.logger.Info("Trigger started", zap.Duration("interval", t.interval))
	return nil
}

// Stop stops the trigger, waiting for an in-flight sweep to finish
func (t *IntervalTrigger) Stop(ctx context.Context) error {
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
		t.logger.Info("Trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *IntervalTrigger) runLoop(ctx context.Context) {
	defer t.wg.Done()

	startup := time.NewTimer(t.startup)
	defer startup.Stop()
	select {
	case <-ctx.Done():
		return
	case <-startup.C:
		t.runSweep(ctx)
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.runSweep(ctx)
		}
	}
}

func (t *IntervalTrigger) runSweep(ctx context.Context) {
	start := time.Now()
	t.logger.Debug("Sweep started")
	t.sweep(ctx)
	t.logger.Debug("Sweep finished", zap.Duration("took", time.Since(start)))
}
