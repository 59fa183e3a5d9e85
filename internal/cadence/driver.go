// Package cadence turns a simulation tick stream into periodic memory
// maintenance: hourly decay, daily summarization and dedup cache cleanup.
//
// Driver is pure tick arithmetic and can be fed by any clock. Runner is a
// wall-clock tick source that advances ticks on a time.Ticker and feeds a
// Driver.
package cadence

import (
	"context"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tiermem/internal/memory"
)

// Default intervals, in ticks.
const (
	DefaultDecayEvery   = memory.TicksPerHour
	DefaultDrainEvery   = memory.TicksPerDay
	DefaultCleanupEvery = memory.TicksPerHour
)

// Maintainer runs maintenance across every agent.
// *integration.Registry implements it.
type Maintainer interface {
	DecayAll() memory.DecayResult
	SummarizeAll(ctx context.Context)
}

// Cleaner clears an auxiliary cache. *integration.ConversationRecorder and
// *summarizer.Scheduler implement it.
type Cleaner interface {
	Cleanup(now int64) bool
}

// Intervals sets how often, in ticks, each job fires. Zero selects the
// default; a negative value disables the job.
type Intervals struct {
	DecayEvery   int64 `koanf:"decay_every"`
	DrainEvery   int64 `koanf:"drain_every"`
	CleanupEvery int64 `koanf:"cleanup_every"`
}

func (i Intervals) withDefaults() Intervals {
	if i.DecayEvery == 0 {
		i.DecayEvery = DefaultDecayEvery
	}
	if i.DrainEvery == 0 {
		i.DrainEvery = DefaultDrainEvery
	}
	if i.CleanupEvery == 0 {
		i.CleanupEvery = DefaultCleanupEvery
	}
	return i
}

// Driver fires maintenance jobs when the tick crosses an interval
// boundary. Ticks may advance by more than one between calls; each job
// fires at most once per call.
//
// Driver is not safe for concurrent use. Runner serializes calls.
type Driver struct {
	intervals Intervals
	target    Maintainer
	cleaners  []Cleaner
	logger    *zap.Logger
	last      int64
}

// NewDriver creates a driver. target may be nil to run only cleanup.
func NewDriver(intervals Intervals, target Maintainer, logger *zap.Logger, cleaners ...Cleaner) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		intervals: intervals.withDefaults(),
		target:    target,
		cleaners:  cleaners,
		logger:    logger.Named("cadence"),
	}
}

// Intervals returns the effective intervals.
func (d *Driver) Intervals() Intervals { return d.intervals }

// Fired reports which jobs one OnTick call ran.
type Fired struct {
	Decay   bool
	Drain   bool
	Cleanup bool
}

// OnTick advances the driver to tick and runs every job whose interval
// boundary lies in (last, tick]. Ticks that do not move forward are ignored.
// Decay runs before drain, and cleanup runs last.
func (d *Driver) OnTick(ctx context.Context, tick int64) Fired {
	prev := d.last
	if tick <= prev {
		return Fired{}
	}
	d.last = tick

	var f Fired
	if crossed(prev, tick, d.intervals.DecayEvery) && d.target != nil {
		res := d.target.DecayAll()
		f.Decay = true
		d.logger.Debug("decay fired", zap.Int64("tick", tick), zap.Int("evicted", res.Total()))
	}
	if crossed(prev, tick, d.intervals.DrainEvery) && d.target != nil {
		d.target.SummarizeAll(ctx)
		f.Drain = true
		d.logger.Info("drain fired", zap.Int64("tick", tick))
	}
	if crossed(prev, tick, d.intervals.CleanupEvery) {
		for _, c := range d.cleaners {
			c.Cleanup(tick)
		}
		f.Cleanup = true
	}
	return f
}

// crossed reports whether a multiple of every lies in (prev, cur].
func crossed(prev, cur, every int64) bool {
	if every <= 0 {
		return false
	}
	return floorDiv(cur, every) > floorDiv(prev, every)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
