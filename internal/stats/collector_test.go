// Tests for the host stats collector. They read the real host, so they
// only check ranges rather than values.
package stats

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

// nopLogger returns a logger that discards all output, suitable for tests.
func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewCollector(t *testing.T) {
	t.Run("creates collector with logger", func(t *testing.T) {
		logger := nopLogger()
		collector := NewCollector(logger)

		if collector == nil {
			t.Fatal("expected non-nil collector")
		}
		if collector.logger != logger {
			t.Error("expected collector to store logger")
		}
	})
}

func TestCollect(t *testing.T) {
	collector := NewCollector(nopLogger())

	snap, err := collector.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	t.Run("timestamp is recent", func(t *testing.T) {
		if time.Since(snap.Timestamp) > time.Minute {
			t.Errorf("stale timestamp %s", snap.Timestamp)
		}
	})

	t.Run("load averages are non-negative", func(t *testing.T) {
		if snap.Load1 < 0 || snap.Load5 < 0 || snap.Load15 < 0 {
			t.Errorf("negative load: %+v", snap)
		}
	})

	t.Run("memory percentage in range", func(t *testing.T) {
		if snap.MemoryPct < 0 || snap.MemoryPct > 100 {
			t.Errorf("MemoryPct = %f", snap.MemoryPct)
		}
	})
}

func TestLoad1(t *testing.T) {
	v, err := NewCollector(nopLogger()).Load1(context.Background())
	if err != nil {
		t.Fatalf("Load1: %v", err)
	}
	if v < 0 {
		t.Errorf("Load1 = %f", v)
	}
}

func TestCollect_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewCollector(nopLogger()).Collect(ctx); err == nil {
		t.Error("expected error for cancelled context")
	}
}
