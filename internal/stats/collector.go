// Package stats samples host load for tinycron's load guard and for the
// host summary the daemon logs at startup.
//
// A sample is cheap (no CPU sampling interval), so it is taken right before
// each guarded job runs rather than on a timer.
package stats

import (
	"context"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

// Snapshot is the host state at a point in time.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`

	Load1  float64 `json:"load1"`
	Load5  float64 `json:"load5"`
	Load15 float64 `json:"load15"`

	// MemoryPct is memory usage, 0-100.
	MemoryPct float64 `json:"memoryPct"`

	// NumCPU counts logical CPUs; 0 if unknown.
	NumCPU int `json:"numCpu"`

	// Uptime in seconds since boot.
	Uptime uint64 `json:"uptime"`
}

// Collector reads host metrics through gopsutil.
type Collector struct {
	logger *slog.Logger
}

// NewCollector creates a stats collector with the given logger.
func NewCollector(logger *slog.Logger) *Collector {
	return &Collector{
		logger: logger,
	}
}

// Collect gathers a snapshot. Individual metric failures are logged and
// leave that metric zero; only the load average is required, because the
// load guard cannot decide without it.
func (c *Collector) Collect(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{
		Timestamp: time.Now(),
	}

	loadInfo, err := load.AvgWithContext(ctx)
	if err != nil {
		return nil, err
	}
	snap.Load1 = loadInfo.Load1
	snap.Load5 = loadInfo.Load5
	snap.Load15 = loadInfo.Load15

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	memInfo, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		c.logger.Warn("failed to collect memory stats", slog.String("error", err.Error()))
	} else {
		snap.MemoryPct = memInfo.UsedPercent
	}

	n, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		c.logger.Warn("failed to count CPUs", slog.String("error", err.Error()))
	} else {
		snap.NumCPU = n
	}

	uptime, err := host.UptimeWithContext(ctx)
	if err != nil {
		c.logger.Warn("failed to collect uptime", slog.String("error", err.Error()))
	} else {
		snap.Uptime = uptime
	}

	return snap, nil
}

// Load1 returns the 1-minute load average. It satisfies the job package's
// LoadSource.
func (c *Collector) Load1(ctx context.Context) (float64, error) {
	loadInfo, err := load.AvgWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return loadInfo.Load1, nil
}
