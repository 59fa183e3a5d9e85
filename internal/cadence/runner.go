package cadence

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultTickInterval is the wall-clock duration of one tick.
const DefaultTickInterval = 100 * time.Millisecond

// Config configures a Runner.
type Config struct {
	// TickInterval is the wall-clock time between tick steps.
	TickInterval time.Duration `koanf:"tick_interval"`

	// TicksPerStep is how many ticks each step advances. Defaults to 1.
	TicksPerStep int64 `koanf:"ticks_per_step"`

	Intervals `koanf:",squash"`
}

// ErrRunnerStarted is returned by Start and Run on a running Runner.
var ErrRunnerStarted = errors.New("cadence runner is already running")

// Runner advances a tick counter on a wall-clock ticker and feeds each new
// tick to a Driver. It implements tiered.Clock, so stores created with it
// timestamp entries with the current tick.
//
// Thread Safety: Now and Advance may be called from any goroutine. Driver
// calls are serialized by the runner.
type Runner struct {
	interval time.Duration
	step     int64
	driver   *Driver
	logger   *zap.Logger

	tick atomic.Int64

	// driveMu serializes Driver calls between the loop and Advance.
	driveMu sync.Mutex

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewRunner creates a stopped runner starting at tick start.
func NewRunner(cfg Config, driver *Driver, start int64, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.TicksPerStep <= 0 {
		cfg.TicksPerStep = 1
	}
	r := &Runner{
		interval: cfg.TickInterval,
		step:     cfg.TicksPerStep,
		driver:   driver,
		logger:   logger.Named("cadence"),
	}
	r.tick.Store(start)
	if driver != nil {
		driver.last = start
	}
	return r
}

// Now returns the current tick.
func (r *Runner) Now() int64 { return r.tick.Load() }

// Advance moves the clock forward by n ticks and feeds the driver. It is
// used for manual stepping and by the ticker loop.
func (r *Runner) Advance(ctx context.Context, n int64) Fired {
	if n <= 0 {
		return Fired{}
	}
	r.driveMu.Lock()
	defer r.driveMu.Unlock()

	now := r.tick.Add(n)
	if r.driver == nil {
		return Fired{}
	}
	return r.driver.OnTick(ctx, now)
}

// Start launches the ticker loop in the background. Stop ends it.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return ErrRunnerStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.running = true

	r.logger.Info("cadence runner started",
		zap.Duration("tick_interval", r.interval),
		zap.Int64("ticks_per_step", r.step),
		zap.Int64("tick", r.Now()),
	)

	go r.loop(ctx, r.done)
	return nil
}

// Stop ends the ticker loop and waits for it to exit. Stopping a stopped
// runner is a no-op.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	cancel()
	<-done
	r.logger.Info("cadence runner stopped", zap.Int64("tick", r.Now()))
}

// Run starts the runner and blocks until ctx is done. It suits errgroup.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	r.Stop()
	return nil
}

func (r *Runner) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("cadence loop panicked, recovering",
				zap.Any("panic", p),
				zap.Stack("stack"),
			)
			r.mu.Lock()
			r.running = false
			r.mu.Unlock()
		}
	}()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Advance(ctx, r.step)
		}
	}
}
