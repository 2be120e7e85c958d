// Package systemd integrates tinycron with systemd service management.
//
// It wraps coreos/go-systemd to provide:
//   - sd_notify READY/RELOADING/STOPPING/STATUS for Type=notify units
//   - watchdog pings gated on scheduler health, for WatchdogSec
//
// Every call is a no-op when not running under systemd (no NOTIFY_SOCKET).
package systemd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// sdNotify is replaced in tests.
var sdNotify = daemon.SdNotify

func notify(state, what string) bool {
	sent, err := sdNotify(false, state)
	if err != nil {
		slog.Warn("failed to send systemd notification", "state", what, "error", err)
		return false
	}
	if sent {
		slog.Debug("sent systemd notification", "state", what)
	}
	return sent
}

// NotifyReady sends READY=1 once the scheduler is running. Returns true
// if the notification was sent.
func NotifyReady() bool {
	return notify(daemon.SdNotifyReady, "ready")
}

// NotifyReloading sends RELOADING=1 while a changed config is applied.
// Follow it with NotifyReady.
func NotifyReloading() bool {
	return notify(daemon.SdNotifyReloading, "reloading")
}

// NotifyStopping sends STOPPING=1 so systemd waits for the process to
// exit rather than killing it.
func NotifyStopping() bool {
	return notify(daemon.SdNotifyStopping, "stopping")
}

// NotifyStatus sets the free-form status line shown by systemctl status.
func NotifyStatus(format string, args ...any) bool {
	return notify("STATUS="+fmt.Sprintf(format, args...), "status")
}

// HealthCheckFunc returns true if the service is healthy.
type HealthCheckFunc func() bool

// Watchdog pings systemd every half WatchdogSec while healthCheck passes,
// until ctx is cancelled. When the watchdog is not enabled it returns
// immediately. Skipped pings let systemd restart a wedged scheduler.
func Watchdog(ctx context.Context, healthCheck HealthCheckFunc) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		slog.Debug("watchdog not enabled", "error", err)
		return nil
	}
	if interval == 0 {
		slog.Debug("watchdog interval is zero, watchdog disabled")
		return nil
	}

	// Ping every half-interval as per systemd documentation
	pingInterval := interval / 2
	slog.Info("starting systemd watchdog",
		"watchdog_interval", interval,
		"ping_interval", pingInterval,
	)

	watchdogLoop(ctx, pingInterval, healthCheck)
	return nil
}

// watchdogLoop sends periodic watchdog pings until context is cancelled.
func watchdogLoop(ctx context.Context, interval time.Duration, healthCheck HealthCheckFunc) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("watchdog loop stopping due to context cancellation")
			return
		case <-ticker.C:
			if !healthCheck() {
				slog.Warn("scheduler unhealthy, skipping watchdog ping")
				continue
			}
			if _, err := sdNotify(false, daemon.SdNotifyWatchdog); err != nil {
				slog.Warn("failed to send watchdog ping", "error", err)
			}
		}
	}
}

// IsRunningUnderSystemd reports whether NOTIFY_SOCKET is set.
func IsRunningUnderSystemd() bool {
	return os.Getenv("NOTIFY_SOCKET") != ""
}
