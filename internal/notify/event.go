// Package notify turns scheduler lifecycle hooks into Events and fans them
// out to sinks such as the run history, NATS and the WebSocket collector.
package notify

import (
	"context"
	"time"
)

// EventType names a lifecycle transition.
type EventType string

const (
	SchedulerStarted EventType = "scheduler_started"
	SchedulerStopped EventType = "scheduler_stopped"
	SchedulerError   EventType = "error"
	JobInitiated     EventType = "job_initiated"
	JobCompleted     EventType = "job_completed"
	JobFailed        EventType = "job_failed"
	JobSkipped       EventType = "job_skipped"
)

// Terminal reports whether t ends a job run.
func (t EventType) Terminal() bool {
	switch t {
	case JobCompleted, JobFailed, JobSkipped:
		return true
	}
	return false
}

// Event is a single lifecycle notification. Job fields are empty for
// scheduler-level events.
type Event struct {
	Type        EventType `json:"type"`
	JobID       string    `json:"job_id,omitempty"`
	Description string    `json:"description,omitempty"`
	Schedule    string    `json:"schedule,omitempty"`
	Time        time.Time `json:"time"`

	// StartedAt is when the run began; set on terminal job events.
	StartedAt  time.Time `json:"started_at,omitzero"`
	DurationMs int64     `json:"duration_ms,omitempty"`

	Error string `json:"error,omitempty"`

	// ExitCode is set for failed command jobs. Nil when not applicable.
	ExitCode *int `json:"exit_code,omitempty"`
}

// Sink receives events. Implementations should return promptly; a failing
// sink is logged and otherwise ignored.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) Publish(ctx context.Context, ev Event) error { return f(ctx, ev) }

// exitStatuser is implemented by job errors that carry a process exit code.
type exitStatuser interface {
	ExitStatus() int
}
