package shutdown

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"testing"
)

func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCoordinator_ReverseOrder(t *testing.T) {
	c := NewCoordinator(nopLogger())
	var order []string
	for _, name := range []string{"history", "nats", "scheduler"} {
		c.Register(name, Func(func(context.Context) error {
			order = append(order, name)
			return nil
		}))
	}

	if c.ComponentCount() != 3 {
		t.Fatalf("ComponentCount() = %d", c.ComponentCount())
	}
	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if want := []string{"scheduler", "nats", "history"}; !slices.Equal(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestCoordinator_ContinuesAfterFailure(t *testing.T) {
	c := NewCoordinator(nopLogger())
	errA := errors.New("a failed")
	errC := errors.New("c failed")
	closedB := false

	c.Register("a", Closer(func() error { return errA }))
	c.Register("b", Closer(func() error { closedB = true; return nil }))
	c.Register("c", Func(func(context.Context) error { return errC }))

	err := c.Shutdown(context.Background())
	if !errors.Is(err, errA) || !errors.Is(err, errC) {
		t.Errorf("Shutdown error = %v, want both failures", err)
	}
	if !closedB {
		t.Error("component after a failure was not shut down")
	}
}

func TestCoordinator_DeadlineExceeded(t *testing.T) {
	c := NewCoordinator(nopLogger())
	called := false
	c.Register("late", Func(func(context.Context) error { called = true; return nil }))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Shutdown(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Shutdown error = %v, want context.Canceled", err)
	}
	if called {
		t.Error("component shut down after deadline")
	}
}
