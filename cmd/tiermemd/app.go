package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tiermem/internal/cadence"
	"github.com/fyrsmithlabs/tiermem/internal/config"
	"github.com/fyrsmithlabs/tiermem/internal/events"
	"github.com/fyrsmithlabs/tiermem/internal/integration"
	"github.com/fyrsmithlabs/tiermem/internal/memory"
	"github.com/fyrsmithlabs/tiermem/internal/services"
	"github.com/fyrsmithlabs/tiermem/internal/snapshot"
	"github.com/fyrsmithlabs/tiermem/internal/summarizer"
	"github.com/fyrsmithlabs/tiermem/internal/tagrules"
	"github.com/fyrsmithlabs/tiermem/internal/tiered"
)

// closeTimeout bounds the final snapshot save and the summarizer drain.
const closeTimeout = 10 * time.Second

// app holds the wired daemon components.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	tagger    *memory.Tagger
	scheduler *summarizer.Scheduler
	publisher events.Publisher
	registry  *integration.Registry
	recorder  *integration.ConversationRecorder
	runner    *cadence.Runner
	snapshots snapshot.Store
	watcher   *tagrules.Watcher
	memory    *services.Memory
}

// newApp wires every component and restores saved agents. On error the
// components created so far are released.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger, publisher: events.Noop{}}
	defer func() {
		if err != nil {
			a.release()
		}
	}()

	if a.tagger, err = newTagger(cfg.TagRules, logger); err != nil {
		return nil, err
	}
	if cfg.TagRules.Watch && cfg.TagRules.Path != "" {
		if a.watcher, err = tagrules.NewWatcher(cfg.TagRules.Path, a.tagger, logger); err != nil {
			return nil, fmt.Errorf("failed to watch tag rules: %w", err)
		}
	}

	sum, err := summarizer.New(cfg.Summarizer.ProviderConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create summarizer: %w", err)
	}
	schedOpts := append(cfg.Summarizer.SchedulerOptions(), summarizer.WithLogger(logger))
	if a.scheduler, err = summarizer.NewScheduler(sum, schedOpts...); err != nil {
		return nil, fmt.Errorf("failed to create summarization scheduler: %w", err)
	}
	if err = a.scheduler.Start(); err != nil {
		return nil, fmt.Errorf("failed to start summarization scheduler: %w", err)
	}

	if cfg.Events.NATSURL != "" {
		pub, err := events.DialNATS(cfg.Events.NATSURL)
		if err != nil {
			return nil, err
		}
		a.publisher = pub
		logger.Info("publishing memory events", zap.String("nats_url", cfg.Events.NATSURL))
	}

	// The registry and recorder read the runner's tick. The runner is
	// created after them because its driver maintains the registry and its
	// start tick comes from the restored snapshots.
	clock := tiered.ClockFunc(func() int64 {
		if a.runner == nil {
			return 0
		}
		return a.runner.Now()
	})
	a.registry = integration.NewRegistry(cfg.Memory, logger,
		tiered.WithTagger(a.tagger),
		tiered.WithScheduler(a.scheduler),
		tiered.WithPublisher(a.publisher),
		tiered.WithClock(clock),
	)
	a.recorder = integration.NewConversationRecorder(a.registry, clock, logger)

	if a.snapshots, err = snapshot.Open(ctx, cfg.Snapshot.Config, logger); err != nil {
		return nil, fmt.Errorf("failed to open snapshot store: %w", err)
	}
	if _, err = a.registry.LoadAll(ctx, a.snapshots); err != nil {
		// Agents whose snapshots are readable are still restored.
		logger.Warn("some snapshots failed to load", zap.Error(err))
		err = nil
	}

	driver := cadence.NewDriver(cfg.Cadence.Intervals, a.registry, logger, a.recorder, a.scheduler)
	a.runner = cadence.NewRunner(cfg.Cadence, driver, a.registry.LatestTick(), logger)

	var searcher services.Searcher
	if cs, ok := snapshot.Unwrap(a.snapshots).(*snapshot.ChromemStore); ok {
		searcher = cs
	}
	a.memory, err = services.NewMemory(services.Options{
		Registry:  a.registry,
		Recorder:  a.recorder,
		Clock:     clock,
		Snapshots: a.snapshots,
		Searcher:  searcher,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("memory engine ready",
		zap.Int("agents", a.registry.Len()),
		zap.Int64("tick", a.runner.Now()),
		zap.Bool("search", searcher != nil),
		zap.Int("tag_rules", len(a.tagger.Rules())),
	)
	return a, nil
}

// newTagger builds the shared tagger from the optional rule file. A
// missing file falls back to the built-in rules so a watcher can pick the
// file up later.
func newTagger(cfg config.TagRulesConfig, logger *zap.Logger) (*memory.Tagger, error) {
	if cfg.Path == "" {
		return memory.NewTagger(nil), nil
	}
	rules, err := tagrules.Load(cfg.Path)
	switch {
	case os.IsNotExist(err):
		logger.Warn("tag rule file not found, using built-in rules", zap.String("path", cfg.Path))
		return memory.NewTagger(nil), nil
	case err != nil:
		return nil, fmt.Errorf("failed to load tag rules: %w", err)
	}
	return memory.NewTagger(rules), nil
}

// runSnapshots saves every agent on the configured cron schedule until ctx
// is done. An empty schedule only waits.
func (a *app) runSnapshots(ctx context.Context) error {
	spec := a.cfg.Snapshot.Schedule
	if spec == "" {
		<-ctx.Done()
		return nil
	}

	c := cron.New(cron.WithLogger(cronLogger{a.logger.Named("snapshot")}))
	if _, err := c.AddFunc(spec, func() {
		if err := a.registry.SaveAll(ctx, a.snapshots); err != nil {
			a.logger.Warn("scheduled snapshot failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("invalid snapshot schedule %q: %w", spec, err)
	}
	c.Start()
	a.logger.Info("snapshot schedule started", zap.String("schedule", spec))

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// Close saves every agent a final time and releases all components.
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if a.registry != nil && a.snapshots != nil {
		if err := a.registry.SaveAll(ctx, a.snapshots); err != nil {
			a.logger.Error("final snapshot failed", zap.Error(err))
		}
	}
	a.releaseWith(ctx)
}

func (a *app) release() {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	a.releaseWith(ctx)
}

func (a *app) releaseWith(ctx context.Context) {
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.scheduler != nil {
		if err := a.scheduler.Stop(ctx); err != nil {
			a.logger.Warn("summarization scheduler did not drain", zap.Error(err))
		}
	}
	if a.snapshots != nil {
		if err := a.snapshots.Close(); err != nil {
			a.logger.Warn("failed to close snapshot store", zap.Error(err))
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("failed to close event publisher", zap.Error(err))
		}
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, zap.Any("details", keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}
