package systemd

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

type recordedNotify struct {
	mu     sync.Mutex
	states []string
}

func (r *recordedNotify) notify(_ bool, state string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
	return true, nil
}

func (r *recordedNotify) count(state string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.states {
		if s == state {
			n++
		}
	}
	return n
}

func withRecorder(t *testing.T) *recordedNotify {
	t.Helper()
	rec := &recordedNotify{}
	orig := sdNotify
	sdNotify = rec.notify
	t.Cleanup(func() { sdNotify = orig })
	return rec
}

func TestNotifications(t *testing.T) {
	rec := withRecorder(t)

	if !NotifyReady() || !NotifyReloading() || !NotifyStopping() {
		t.Fatal("notifications not reported as sent")
	}
	NotifyStatus("%d jobs", 3)

	want := []string{daemon.SdNotifyReady, daemon.SdNotifyReloading, daemon.SdNotifyStopping, "STATUS=3 jobs"}
	if len(rec.states) != len(want) {
		t.Fatalf("states = %v", rec.states)
	}
	for i := range want {
		if rec.states[i] != want[i] {
			t.Errorf("state %d = %q, want %q", i, rec.states[i], want[i])
		}
	}
}

func TestWatchdogLoop_GatedOnHealth(t *testing.T) {
	rec := withRecorder(t)

	var healthy atomic.Bool
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		watchdogLoop(ctx, 5*time.Millisecond, healthy.Load)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if n := rec.count(daemon.SdNotifyWatchdog); n != 0 {
		t.Errorf("pinged %d times while unhealthy", n)
	}

	healthy.Store(true)
	deadline := time.Now().Add(2 * time.Second)
	for rec.count(daemon.SdNotifyWatchdog) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no watchdog ping while healthy")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	<-done
}

func TestWatchdog_DisabledReturnsImmediately(t *testing.T) {
	t.Setenv("WATCHDOG_USEC", "")
	t.Setenv("WATCHDOG_PID", "")

	done := make(chan error, 1)
	go func() { done <- Watchdog(context.Background(), func() bool { return true }) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watchdog() = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Watchdog blocked without WATCHDOG_USEC")
	}
}
