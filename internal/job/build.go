package job

import (
	"errors"
	"log/slog"
	"time"

	"github.com/guojianbin/TinyCron/internal/client"
	"github.com/guojianbin/TinyCron/internal/config"
	"github.com/guojianbin/TinyCron/internal/executor"
	"github.com/guojianbin/TinyCron/internal/scheduler"
)

// Deps are the shared services jobs are built with.
type Deps struct {
	Runner    Runner
	Requester Requester
	Load      LoadSource
	Logger    *slog.Logger
}

// FromConfig builds the job described by cfg. Errors name the job id.
func FromConfig(cfg config.JobConfig, deps Deps) (scheduler.Job, error) {
	base, err := NewBase(cfg.ID, cfg.Description, cfg.Schedule)
	if err != nil {
		return nil, err
	}

	var built scheduler.Job
	switch {
	case cfg.HTTP != nil:
		if deps.Requester == nil {
			return nil, errors.New("job " + cfg.ID + ": no http client configured")
		}
		built = NewHTTP(base, deps.Requester, client.Request{
			Method:  cfg.HTTP.Method,
			URL:     cfg.HTTP.URL,
			Body:    cfg.HTTP.Body,
			Headers: cfg.HTTP.Headers,
		})
	default:
		if deps.Runner == nil {
			return nil, errors.New("job " + cfg.ID + ": no command runner configured")
		}
		built = NewShell(base, deps.Runner, executor.Spec{
			Command:     cfg.Command,
			Interpreter: cfg.Interpreter,
			Timeout:     time.Duration(cfg.Timeout) * time.Second,
			PTY:         cfg.PTY,
		})
	}

	if cfg.MaxLoad > 0 && deps.Load != nil {
		logger := deps.Logger
		if logger == nil {
			logger = slog.Default()
		}
		built = NewGuarded(built, deps.Load, cfg.MaxLoad, logger)
	}
	return built, nil
}

// BuildAll builds every job in cfgs, in order. All build errors are
// returned joined alongside the jobs that did build.
func BuildAll(cfgs []config.JobConfig, deps Deps) ([]scheduler.Job, error) {
	jobs := make([]scheduler.Job, 0, len(cfgs))
	var errs []error
	for _, cfg := range cfgs {
		j, err := FromConfig(cfg, deps)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		jobs = append(jobs, j)
	}
	return jobs, errors.Join(errs...)
}
