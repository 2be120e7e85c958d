// Package scheduler runs registered jobs when their cron expression falls
// due. A single goroutine polls the clock, advances a Watermark over the
// time elapsed since the previous tick, and runs every job with an
// occurrence inside it, sequentially and in registration order.
//
// Usage:
//
//	s := scheduler.New(scheduler.Options{Interval: 30 * time.Second, Logger: logger})
//	s.Register(job)
//	s.Start(ctx)
//	// ... on shutdown:
//	s.Shutdown(shutdownCtx)
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/guojianbin/TinyCron/internal/clock"
	"github.com/guojianbin/TinyCron/internal/cronexpr"
)

// DefaultInterval is used when Options.Interval is not positive.
const DefaultInterval = 30 * time.Second

var (
	// ErrJobPanicked wraps the value recovered from a panicking job.
	ErrJobPanicked = errors.New("job panicked")

	// ErrSkipped is returned (wrapped) by jobs that chose not to run this
	// tick. Skips are reported through OnJobSkipped rather than as failures.
	ErrSkipped = errors.New("job skipped")
)

// Job is the unit of work the scheduler fires. Identity is the ID: two
// jobs with the same ID cannot be registered together.
type Job interface {
	ID() string
	Description() string
	ScheduleText() string
	Schedule() cronexpr.Expression
	Run(ctx context.Context) error
}

// Hooks are optional lifecycle callbacks. Any nil hook is skipped. Hooks
// run on the scheduler goroutine, so slow hooks delay later jobs. A hook
// that wants to stop the scheduler calls RequestStop, never Stop.
type Hooks struct {
	OnStarted      func()
	OnStopped      func()
	OnError        func(err error)
	OnJobInitiated func(job Job)
	OnJobCompleted func(job Job)
	OnJobFailed    func(job Job, err error)
	OnJobSkipped   func(job Job, reason error)
}

// Options configures a Scheduler.
type Options struct {
	Interval time.Duration
	Clock    clock.Clock
	Hooks    Hooks
	Logger   *slog.Logger
}

// Scheduler owns the job collection and the polling loop.
type Scheduler struct {
	interval time.Duration
	clock    clock.Clock
	hooks    Hooks
	logger   *slog.Logger

	jobsMu sync.Mutex
	jobs   []Job

	// lifecycle serializes Start and Stop.
	lifecycle sync.Mutex
	running   atomic.Bool
	alive     atomic.Bool
	cancel    context.CancelFunc
	done      chan struct{}

	wmMu      sync.Mutex
	watermark Watermark

	ticks atomic.Uint64
}

// New creates a stopped Scheduler.
func New(opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Scheduler{
		interval: opts.Interval,
		clock:    opts.Clock,
		hooks:    opts.Hooks,
		logger:   opts.Logger.With(slog.String("component", "scheduler")),
	}
}

// Start begins ticking on a background goroutine. The first tick happens
// immediately. Calling Start on a running scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.running.Load() {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)
	s.alive.Store(true)

	s.logger.Info("scheduler started",
		slog.Duration("interval", s.interval),
		slog.Int("jobs", s.JobCount()),
	)
	s.callHook("started", func() {
		if s.hooks.OnStarted != nil {
			s.hooks.OnStarted()
		}
	})

	go s.run(loopCtx, s.done)
}

// Stop cancels the loop, waits for the current tick to finish and discards
// the watermark. Occurrences while stopped are never run. Calling Stop on a
// stopped scheduler does nothing.
//
// Stop blocks until the loop goroutine exits, so hooks and jobs, which run
// on that goroutine, must call RequestStop instead.
func (s *Scheduler) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if !s.running.Load() {
		return
	}

	s.cancel()
	<-s.done
	s.running.Store(false)

	s.wmMu.Lock()
	s.watermark = Watermark{}
	s.wmMu.Unlock()

	s.logger.Info("scheduler stopped", slog.Uint64("ticks", s.ticks.Load()))
	s.callHook("stopped", func() {
		if s.hooks.OnStopped != nil {
			s.hooks.OnStopped()
		}
	})
}

// RequestStop stops the scheduler without waiting for the current tick.
// It is the form of Stop that hooks and jobs may call.
func (s *Scheduler) RequestStop() {
	go s.Stop()
}

// Shutdown stops the scheduler, giving up when ctx expires. The loop is
// still cancelled in that case; only the wait is abandoned.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler shutdown: %w", ctx.Err())
	}
}

// Running reports whether the scheduler is in the Running state.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// IsHealthy reports whether the scheduler is running and its loop
// goroutine has not exited.
func (s *Scheduler) IsHealthy() bool {
	return s.running.Load() && s.alive.Load()
}

// Watermark returns the interval evaluated by the most recent tick. It is
// zero before the first tick and after Stop.
func (s *Scheduler) Watermark() Watermark {
	s.wmMu.Lock()
	defer s.wmMu.Unlock()
	return s.watermark
}

// Ticks returns the number of ticks run since the scheduler was created.
func (s *Scheduler) Ticks() uint64 {
	return s.ticks.Load()
}

// Register adds job at the end of the run order. It returns false if a job
// with the same ID is already registered.
func (s *Scheduler) Register(job Job) bool {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	for _, existing := range s.jobs {
		if existing.ID() == job.ID() {
			return false
		}
	}
	s.jobs = append(s.jobs, job)
	s.logger.Debug("job registered",
		slog.String("job_id", job.ID()),
		slog.String("schedule", job.ScheduleText()),
	)
	return true
}

// Unregister removes the job with the given ID. It returns false if no
// such job exists.
func (s *Scheduler) Unregister(id string) bool {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	for i, existing := range s.jobs {
		if existing.ID() == id {
			s.jobs = append(s.jobs[:i:i], s.jobs[i+1:]...)
			s.logger.Debug("job unregistered", slog.String("job_id", id))
			return true
		}
	}
	return false
}

// Sync replaces the job collection with jobs, used on config reload. An ID
// already registered keeps its position but takes the new definition. IDs
// missing from jobs are dropped and new IDs are appended in order. Later
// duplicates of an ID in jobs are ignored.
func (s *Scheduler) Sync(jobs []Job) (added, removed int) {
	incoming := make(map[string]Job, len(jobs))
	for _, job := range jobs {
		if _, dup := incoming[job.ID()]; !dup {
			incoming[job.ID()] = job
		}
	}

	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	next := make([]Job, 0, len(incoming))
	kept := make(map[string]bool, len(s.jobs))
	for _, existing := range s.jobs {
		replacement, ok := incoming[existing.ID()]
		if !ok {
			removed++
			continue
		}
		next = append(next, replacement)
		kept[existing.ID()] = true
	}
	for _, job := range jobs {
		if kept[job.ID()] {
			continue
		}
		next = append(next, job)
		kept[job.ID()] = true
		added++
	}
	s.jobs = next

	s.logger.Info("jobs synchronized",
		slog.Int("total", len(next)),
		slog.Int("added", added),
		slog.Int("removed", removed),
	)
	return added, removed
}

// Jobs returns a snapshot of the registered jobs in run order.
func (s *Scheduler) Jobs() []Job {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	out := make([]Job, len(s.jobs))
	copy(out, s.jobs)
	return out
}

// JobCount returns the number of registered jobs.
func (s *Scheduler) JobCount() int {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	return len(s.jobs)
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer s.alive.Store(false)

	for {
		s.tick(ctx)

		timer := s.clock.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// tick advances the watermark to now and runs every due job once.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.clock.Now()

	s.wmMu.Lock()
	window, ok := s.watermark.Advance(now)
	if ok {
		s.watermark = window
	}
	s.wmMu.Unlock()

	if !ok {
		s.logger.Warn("clock moved backwards, skipping tick",
			slog.Time("now", now),
			slog.Time("watermark_ending", window.Ending),
		)
		return
	}
	s.ticks.Add(1)

	for _, job := range s.Jobs() {
		if ctx.Err() != nil {
			return
		}
		if !window.Due(job.Schedule()) {
			continue
		}
		s.execute(ctx, job)
	}
}

func (s *Scheduler) execute(ctx context.Context, job Job) {
	jobLogger := s.logger.With(slog.String("job_id", job.ID()))
	jobLogger.Info("running job", slog.String("schedule", job.ScheduleText()))

	s.callHook("job_initiated", func() {
		if s.hooks.OnJobInitiated != nil {
			s.hooks.OnJobInitiated(job)
		}
	})

	startedAt := s.clock.Now()
	err := s.safeRun(ctx, job)
	duration := s.clock.Now().Sub(startedAt)

	switch {
	case err == nil:
		jobLogger.Info("job completed", slog.Duration("duration", duration))
		s.callHook("job_completed", func() {
			if s.hooks.OnJobCompleted != nil {
				s.hooks.OnJobCompleted(job)
			}
		})
	case errors.Is(err, ErrSkipped):
		jobLogger.Info("job skipped", slog.String("reason", err.Error()))
		s.callHook("job_skipped", func() {
			if s.hooks.OnJobSkipped != nil {
				s.hooks.OnJobSkipped(job, err)
			}
		})
	default:
		jobLogger.Warn("job failed",
			slog.String("error", err.Error()),
			slog.Duration("duration", duration),
		)
		s.callHook("job_failed", func() {
			if s.hooks.OnJobFailed != nil {
				s.hooks.OnJobFailed(job, err)
			}
		})
		s.reportError(fmt.Errorf("job %s: %w", job.ID(), err))
	}
}

// safeRun converts a panic inside job.Run into an error.
func (s *Scheduler) safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panicked",
				slog.String("job_id", job.ID()),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("%w: %v", ErrJobPanicked, r)
		}
	}()
	return job.Run(ctx)
}

func (s *Scheduler) reportError(err error) {
	s.callHook("error", func() {
		if s.hooks.OnError != nil {
			s.hooks.OnError(err)
		}
	})
}

// callHook runs fn, logging instead of propagating a panic.
func (s *Scheduler) callHook(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("hook panicked",
				slog.String("hook", name),
				slog.Any("panic", r),
			)
		}
	}()
	fn()
}
