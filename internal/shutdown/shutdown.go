// Package shutdown stops daemon components in reverse order of
// registration, so the scheduler stops before the sinks it reports to.
//
// Usage:
//
//	coord := shutdown.NewCoordinator(logger)
//	coord.Register("history", store)
//	coord.Register("scheduler", sched)
//	// On shutdown:
//	coord.Shutdown(ctx) // stops the scheduler first, then closes history
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Shutdowner is implemented by components that take part in shutdown. It
// should respect ctx's deadline.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// Func adapts a plain function to Shutdowner.
type Func func(ctx context.Context) error

func (f Func) Shutdown(ctx context.Context) error { return f(ctx) }

// Closer adapts an io.Closer-style Close method to Shutdowner.
func Closer(close func() error) Shutdowner {
	return Func(func(context.Context) error { return close() })
}

type component struct {
	name       string
	shutdowner Shutdowner
}

// Coordinator manages ordered shutdown of multiple components.
type Coordinator struct {
	components []component
	logger     *slog.Logger
}

// NewCoordinator creates a new shutdown coordinator.
func NewCoordinator(logger *slog.Logger) *Coordinator {
	return &Coordinator{
		components: make([]component, 0),
		logger:     logger.With(slog.String("component", "shutdown")),
	}
}

// Register adds a component. Components shut down last in, first out.
func (c *Coordinator) Register(name string, s Shutdowner) {
	c.components = append(c.components, component{
		name:       name,
		shutdowner: s,
	})
	c.logger.Debug("registered shutdown handler",
		slog.String("handler", name),
	)
}

// Shutdown stops every component in reverse order. A failing component
// does not stop the rest; all failures are returned joined. Once ctx
// expires the remaining components are skipped.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.logger.Info("starting coordinated shutdown",
		slog.Int("components", len(c.components)),
	)

	var errs []error

	for i := len(c.components) - 1; i >= 0; i-- {
		comp := c.components[i]

		if ctx.Err() != nil {
			c.logger.Error("shutdown deadline exceeded",
				slog.String("remaining_component", comp.name),
			)
			errs = append(errs, fmt.Errorf("shutdown deadline exceeded at component %s: %w", comp.name, ctx.Err()))
			break
		}

		start := time.Now()
		err := comp.shutdowner.Shutdown(ctx)
		duration := time.Since(start)

		if err != nil {
			c.logger.Error("component shutdown failed",
				slog.String("handler", comp.name),
				slog.Duration("duration", duration),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("failed to shutdown %s: %w", comp.name, err))
			continue
		}
		c.logger.Info("component shutdown complete",
			slog.String("handler", comp.name),
			slog.Duration("duration", duration),
		)
	}

	err := errors.Join(errs...)
	if err != nil {
		c.logger.Warn("coordinated shutdown completed with errors")
	} else {
		c.logger.Info("coordinated shutdown complete")
	}
	return err
}

// ComponentCount returns the number of registered components.
func (c *Coordinator) ComponentCount() int {
	return len(c.components)
}
