package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/guojianbin/TinyCron/internal/clock"
	"github.com/guojianbin/TinyCron/internal/scheduler"
)

// DefaultSinkTimeout bounds each Publish call.
const DefaultSinkTimeout = 5 * time.Second

// failureLogInterval limits sink failure warnings to one per sink per
// interval; the rest are logged at debug.
const failureLogInterval = 30 * time.Second

type namedSink struct {
	name     string
	sink     Sink
	warnings *rate.Limiter
}

// Dispatcher builds scheduler.Hooks that publish every transition to the
// registered sinks in registration order.
type Dispatcher struct {
	clock       clock.Clock
	logger      *slog.Logger
	sinkTimeout time.Duration

	mu      sync.Mutex
	sinks   []namedSink
	started map[string]time.Time
}

// NewDispatcher creates a Dispatcher. A nil clock means the real clock.
func NewDispatcher(c clock.Clock, logger *slog.Logger) *Dispatcher {
	if c == nil {
		c = clock.Real()
	}
	return &Dispatcher{
		clock:       c,
		logger:      logger.With(slog.String("component", "notify")),
		sinkTimeout: DefaultSinkTimeout,
		started:     make(map[string]time.Time),
	}
}

// AddSink registers a sink under name, used in log lines.
func (d *Dispatcher) AddSink(name string, s Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks = append(d.sinks, namedSink{
		name:     name,
		sink:     s,
		warnings: rate.NewLimiter(rate.Every(failureLogInterval), 1),
	})
}

// Hooks returns the scheduler hooks driving this dispatcher.
func (d *Dispatcher) Hooks() scheduler.Hooks {
	return scheduler.Hooks{
		OnStarted: func() {
			d.Emit(Event{Type: SchedulerStarted})
		},
		OnStopped: func() {
			d.Emit(Event{Type: SchedulerStopped})
		},
		OnError: func(err error) {
			d.Emit(Event{Type: SchedulerError, Error: err.Error()})
		},
		OnJobInitiated: func(job scheduler.Job) {
			now := d.clock.Now()
			d.mu.Lock()
			d.started[job.ID()] = now
			d.mu.Unlock()
			ev := jobEvent(JobInitiated, job)
			ev.Time = now
			d.Emit(ev)
		},
		OnJobCompleted: func(job scheduler.Job) {
			d.Emit(d.finish(JobCompleted, job, nil))
		},
		OnJobFailed: func(job scheduler.Job, err error) {
			d.Emit(d.finish(JobFailed, job, err))
		},
		OnJobSkipped: func(job scheduler.Job, reason error) {
			d.Emit(d.finish(JobSkipped, job, reason))
		},
	}
}

func jobEvent(t EventType, job scheduler.Job) Event {
	return Event{
		Type:        t,
		JobID:       job.ID(),
		Description: job.Description(),
		Schedule:    job.ScheduleText(),
	}
}

// finish builds a terminal event, pairing it with the recorded start time.
func (d *Dispatcher) finish(t EventType, job scheduler.Job, err error) Event {
	now := d.clock.Now()
	ev := jobEvent(t, job)
	ev.Time = now

	d.mu.Lock()
	startedAt, ok := d.started[job.ID()]
	delete(d.started, job.ID())
	d.mu.Unlock()

	if ok {
		ev.StartedAt = startedAt
		ev.DurationMs = now.Sub(startedAt).Milliseconds()
	}
	if err != nil {
		ev.Error = err.Error()
		var es exitStatuser
		if errors.As(err, &es) {
			code := es.ExitStatus()
			ev.ExitCode = &code
		}
	}
	return ev
}

// Emit timestamps ev if needed, logs it and publishes it to every sink.
func (d *Dispatcher) Emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = d.clock.Now()
	}

	attrs := []any{slog.String("event", string(ev.Type))}
	if ev.JobID != "" {
		attrs = append(attrs, slog.String("job_id", ev.JobID))
	}
	if ev.Error != "" {
		attrs = append(attrs, slog.String("error", ev.Error))
	}
	d.logger.Debug("event", attrs...)

	d.mu.Lock()
	sinks := make([]namedSink, len(d.sinks))
	copy(sinks, d.sinks)
	d.mu.Unlock()

	for _, s := range sinks {
		d.publish(s, ev)
	}
}

func (d *Dispatcher) publish(s namedSink, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("sink panicked",
				slog.String("sink", s.name),
				slog.Any("panic", r),
			)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.sinkTimeout)
	defer cancel()

	if err := s.sink.Publish(ctx, ev); err != nil {
		level := slog.LevelDebug
		if s.warnings.Allow() {
			level = slog.LevelWarn
		}
		d.logger.Log(ctx, level, "sink publish failed",
			slog.String("sink", s.name),
			slog.String("event", string(ev.Type)),
			slog.String("error", err.Error()),
		)
	}
}
