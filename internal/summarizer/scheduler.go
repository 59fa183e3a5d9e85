package summarizer

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tiermem/internal/memory"
)

// Scheduler defaults.
const (
	DefaultWorkers   = 2
	DefaultQueueSize = 64
	DefaultTimeout   = 30 * time.Second

	// DefaultRetention is how many ticks a Completed result nobody
	// consumed is kept before Cleanup drops it.
	DefaultRetention = memory.TicksPerDay
)

type taskState int

const (
	statePending taskState = iota
	stateCompleted
)

type task struct {
	state       taskState
	result      string
	completedAt int64
}

type job struct {
	ctx         context.Context
	fingerprint string
	entries     []*memory.Entry
	mode        Mode
}

// Scheduler runs summarization jobs on a bounded worker pool and holds
// their results until consumed.
//
// Each fingerprint is either absent, Pending or Completed. Submit moves an
// absent fingerprint to Pending; a worker moves it to Completed on success
// or back to absent on failure; TryConsume removes a Completed result.
// Submit never blocks: a full queue drops the job.
//
// A drain fingerprints entries it removes in the same pass, so most
// Completed results are never consumed. Cleanup drops those older than the
// retention window, measured in the ticks passed to Cleanup.
//
// Thread Safety: all methods are safe for concurrent use.
type Scheduler struct {
	summarizer Summarizer
	logger     *zap.Logger
	workers    int
	queueSize  int
	timeout    time.Duration
	retention  int64

	mu      sync.Mutex
	now     int64
	tasks   map[string]*task
	queue   chan job
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithWorkers sets the worker count. Values below 1 keep the default.
func WithWorkers(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithQueueSize sets the job queue capacity. Values below 1 keep the default.
func WithQueueSize(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// WithTimeout sets the per-job deadline.
func WithTimeout(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithRetention sets how many ticks an unconsumed result is kept. Values
// below 1 keep the default.
func WithRetention(ticks int64) SchedulerOption {
	return func(s *Scheduler) {
		if ticks > 0 {
			s.retention = ticks
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewScheduler creates a stopped scheduler around sum. Call Start before
// submitting work.
func NewScheduler(sum Summarizer, opts ...SchedulerOption) (*Scheduler, error) {
	if sum == nil {
		return nil, errors.New("summarizer cannot be nil")
	}
	s := &Scheduler{
		summarizer: sum,
		logger:     zap.NewNop(),
		workers:    DefaultWorkers,
		queueSize:  DefaultQueueSize,
		timeout:    DefaultTimeout,
		retention:  DefaultRetention,
		tasks:      make(map[string]*task),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("summarizer")
	return s, nil
}

// Available reports whether the underlying summarizer can produce results.
func (s *Scheduler) Available() bool {
	return s.summarizer.Available()
}

// Start launches the workers. Calling Start on a running scheduler returns
// an error.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("scheduler is already running")
	}
	s.queue = make(chan job, s.queueSize)
	s.stopCh = make(chan struct{})
	s.running = true

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(s.queue, s.stopCh)
	}

	s.logger.Info("summarization scheduler started",
		zap.Int("workers", s.workers),
		zap.Int("queue_size", s.queueSize),
		zap.Duration("timeout", s.timeout),
	)
	return nil
}

// Stop signals the workers and waits for running jobs to finish or for ctx
// to expire. Queued jobs that never started are discarded. Stop on a
// stopped scheduler is a no-op.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	queue := s.queue
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		select {
		case j := <-queue:
			s.clearLocked(j.fingerprint)
		default:
			s.logger.Info("summarization scheduler stopped")
			return nil
		}
	}
}

// Submit queues entries for summarization under fingerprint and returns
// immediately. A fingerprint that is already Pending or Completed is
// ignored, as is any submission while the scheduler is stopped.
func (s *Scheduler) Submit(ctx context.Context, fingerprint string, entries []*memory.Entry, mode Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	if _, ok := s.tasks[fingerprint]; ok {
		DedupTotal.Inc()
		return
	}

	j := job{
		ctx:         context.WithoutCancel(ctx),
		fingerprint: fingerprint,
		entries:     memory.CloneEntries(entries),
		mode:        mode,
	}

	select {
	case s.queue <- j:
		s.tasks[fingerprint] = &task{state: statePending}
		Pending.Inc()
	default:
		JobsTotal.WithLabelValues(resultDropped).Inc()
		s.logger.Warn("summarization queue full, dropping job",
			zap.String("fingerprint", fingerprint),
			zap.Int("entries", len(entries)),
		)
	}
}

// TryConsume returns and removes the Completed result for fingerprint.
// Pending and unknown fingerprints report false.
func (s *Scheduler) TryConsume(fingerprint string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[fingerprint]
	if !ok || t.state != stateCompleted {
		return "", false
	}
	delete(s.tasks, fingerprint)
	return t.result, true
}

// PendingCount returns the number of fingerprints queued or running.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.pendingLocked()
}

func (s *Scheduler) pendingLocked() int {
	n := 0
	for _, t := range s.tasks {
		if t.state == statePending {
			n++
		}
	}
	return n
}

// CompletedCount returns the number of results waiting to be consumed.
func (s *Scheduler) CompletedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks) - s.pendingLocked()
}

// Cleanup records now as the current tick and drops Completed results
// that finished at least the retention window before it. Pending work is
// never dropped. It reports whether anything was removed.
func (s *Scheduler) Cleanup(now int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now > s.now {
		s.now = now
	}
	expired := 0
	for fp, t := range s.tasks {
		if t.state == stateCompleted && s.now-t.completedAt >= s.retention {
			delete(s.tasks, fp)
			expired++
		}
	}
	if expired == 0 {
		return false
	}
	ExpiredTotal.Add(float64(expired))
	s.logger.Debug("expired unconsumed summaries",
		zap.Int("expired", expired),
		zap.Int64("tick", s.now),
		zap.Int("remaining", len(s.tasks)),
	)
	return true
}

func (s *Scheduler) worker(queue <-chan job, stop <-chan struct{}) {
	defer s.wg.Done()
	for {
		select {
		case <-stop:
			return
		case j := <-queue:
			s.safeRun(j)
		}
	}
}

// safeRun executes one job. A panicking summarizer clears the fingerprint
// and leaves the worker alive.
func (s *Scheduler) safeRun(j job) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("summarization job panicked",
				zap.String("fingerprint", j.fingerprint),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			JobsTotal.WithLabelValues(resultPanic).Inc()
			s.finish(j.fingerprint, "")
		}
	}()
	s.run(j)
}

func (s *Scheduler) run(j job) {
	ctx, cancel := context.WithTimeout(j.ctx, s.timeout)
	defer cancel()

	ctx, span := tracer().Start(ctx, "summarizer.job", trace.WithAttributes(
		attribute.String("mode", string(j.mode)),
		attribute.Int("entries", len(j.entries)),
	))
	defer span.End()

	start := time.Now()
	result, err := s.summarizer.Summarize(ctx, j.entries, j.mode)
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		JobsTotal.WithLabelValues(resultError).Inc()
		s.logger.Warn("summarization failed",
			zap.String("fingerprint", j.fingerprint),
			zap.String("mode", string(j.mode)),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		s.finish(j.fingerprint, "")
	case result == "":
		JobsTotal.WithLabelValues(resultEmpty).Inc()
		s.logger.Debug("summarization returned no result",
			zap.String("fingerprint", j.fingerprint))
		s.finish(j.fingerprint, "")
	default:
		JobsTotal.WithLabelValues(resultSuccess).Inc()
		s.logger.Debug("summarization completed",
			zap.String("fingerprint", j.fingerprint),
			zap.Duration("elapsed", time.Since(start)),
		)
		s.finish(j.fingerprint, result)
	}
}

// finish swaps a Pending fingerprint to Completed, or clears it when result
// is empty.
func (s *Scheduler) finish(fingerprint, result string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[fingerprint]
	if !ok || t.state != statePending {
		return
	}
	Pending.Dec()
	if result == "" {
		delete(s.tasks, fingerprint)
		return
	}
	t.state = stateCompleted
	t.result = result
	t.completedAt = s.now
}

func (s *Scheduler) clearLocked(fingerprint string) {
	if t, ok := s.tasks[fingerprint]; ok && t.state == statePending {
		delete(s.tasks, fingerprint)
		Pending.Dec()
	}
}
