package job

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/guojianbin/TinyCron/internal/scheduler"
)

// LoadSource reports the 1-minute load average. *stats.Collector
// implements it.
type LoadSource interface {
	Load1(ctx context.Context) (float64, error)
}

// Guarded skips the wrapped job while the system is too busy. If the load
// cannot be read the job runs anyway.
type Guarded struct {
	scheduler.Job
	load    LoadSource
	maxLoad float64
	logger  *slog.Logger
}

// NewGuarded wraps job so it only runs while the load average is at most
// maxLoad.
func NewGuarded(job scheduler.Job, load LoadSource, maxLoad float64, logger *slog.Logger) *Guarded {
	return &Guarded{
		Job:     job,
		load:    load,
		maxLoad: maxLoad,
		logger:  logger,
	}
}

func (g *Guarded) Run(ctx context.Context) error {
	load1, err := g.load.Load1(ctx)
	if err != nil {
		g.logger.Warn("load average unavailable, running anyway",
			slog.String("job_id", g.ID()),
			slog.String("error", err.Error()),
		)
		return g.Job.Run(ctx)
	}
	if load1 > g.maxLoad {
		return fmt.Errorf("%w: load average %.2f above %.2f", ErrSkipped, load1, g.maxLoad)
	}
	return g.Job.Run(ctx)
}
