// Package job provides the concrete scheduler.Job kinds tinycron runs:
// shell commands, webhooks, plain Go functions, and a load-average guard
// that wraps any of them.
package job

import (
	"context"
	"fmt"
	"strings"

	"github.com/guojianbin/TinyCron/internal/cronexpr"
	"github.com/guojianbin/TinyCron/internal/scheduler"
)

// ErrSkipped is returned (wrapped) by jobs that decline to run.
var ErrSkipped = scheduler.ErrSkipped

// Base carries the identity and schedule shared by every job kind.
type Base struct {
	id           string
	description  string
	scheduleText string
	schedule     cronexpr.Expression
}

// NewBase parses schedule and returns a Base for the job with the given id.
func NewBase(id, description, schedule string) (Base, error) {
	expr, err := cronexpr.Parse(schedule)
	if err != nil {
		return Base{}, fmt.Errorf("job %s: %w", id, err)
	}
	return Base{
		id:           id,
		description:  description,
		scheduleText: strings.TrimSpace(schedule),
		schedule:     expr,
	}, nil
}

func (b Base) ID() string                    { return b.id }
func (b Base) Description() string           { return b.description }
func (b Base) ScheduleText() string          { return b.scheduleText }
func (b Base) Schedule() cronexpr.Expression { return b.schedule }

// FuncJob runs a Go function.
type FuncJob struct {
	Base
	fn func(ctx context.Context) error
}

// NewFunc creates a job that calls fn when due.
func NewFunc(id, description, schedule string, fn func(ctx context.Context) error) (*FuncJob, error) {
	base, err := NewBase(id, description, schedule)
	if err != nil {
		return nil, err
	}
	return &FuncJob{Base: base, fn: fn}, nil
}

func (j *FuncJob) Run(ctx context.Context) error {
	return j.fn(ctx)
}
