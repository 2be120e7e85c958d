package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/guojianbin/TinyCron/internal/client"
	"github.com/guojianbin/TinyCron/internal/config"
	"github.com/guojianbin/TinyCron/internal/executor"
	"github.com/guojianbin/TinyCron/internal/history"
	"github.com/guojianbin/TinyCron/internal/job"
	"github.com/guojianbin/TinyCron/internal/logging"
	natsinternal "github.com/guojianbin/TinyCron/internal/nats"
	"github.com/guojianbin/TinyCron/internal/notify"
	"github.com/guojianbin/TinyCron/internal/scheduler"
	"github.com/guojianbin/TinyCron/internal/shutdown"
	"github.com/guojianbin/TinyCron/internal/stats"
	"github.com/guojianbin/TinyCron/internal/systemd"
	"github.com/guojianbin/TinyCron/internal/version"
	"github.com/guojianbin/TinyCron/internal/websocket"
)

// Default shutdown timeout - how long to wait for graceful shutdown
const shutdownTimeout = 30 * time.Second

// buildJobs is swapped in tests.
var buildJobs = job.BuildAll

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Create shutdown context that listens for SIGTERM and SIGINT
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()
			return runDaemon(ctx, opts.configPath)
		},
	}
}

// runDaemon is the daemon lifecycle:
//  1. Load configuration and set up the JSON logger
//  2. Open the event sinks (history, NATS, WebSocket)
//  3. Build the jobs and start the scheduler
//  4. Notify systemd and start the watchdog and config watcher
//  5. Wait for ctx to end, then shut down in reverse order
func runDaemon(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration from %s: %w", configPath, err)
	}

	logger := logging.SetupLogger(cfg.LogLevel)
	logger.Info("tinycron starting",
		slog.String("version", version.Version),
		slog.String("commit", version.Commit),
		slog.String("build_time", version.BuildTime),
		slog.String("config_path", configPath),
		slog.Int("poll_interval", cfg.PollInterval),
		slog.Int("jobs", len(cfg.Jobs)),
	)

	// Components shut down in reverse order, so sinks are registered
	// before the scheduler that feeds them.
	coordinator := shutdown.NewCoordinator(logger)
	dispatcher := notify.NewDispatcher(nil, logger)

	if cfg.HistoryPath != "" {
		store, err := history.Open(cfg.HistoryPath, cfg.HistoryLimit)
		if err != nil {
			logger.Warn("failed to open run history, history disabled",
				slog.String("path", cfg.HistoryPath),
				slog.String("error", err.Error()),
			)
		} else {
			dispatcher.AddSink("history", store)
			coordinator.Register("history", store)
			logger.Info("run history initialized", slog.String("path", cfg.HistoryPath))
		}
	}

	if cfg.NATSEnabled() {
		natsClient := natsinternal.NewClient(natsinternal.Config{
			Servers:  cfg.NATS.Servers,
			NKeySeed: cfg.NATS.NKeySeed,
		}, logger)
		if err := natsClient.Connect(ctx); err != nil {
			logger.Warn("NATS unavailable, events will not be published",
				slog.String("error", err.Error()),
			)
		} else {
			dispatcher.AddSink("nats", natsinternal.NewPublisher(natsClient, cfg.NATS.Subject, logger))
			coordinator.Register("nats", natsClient)
		}
	}

	var wsClient *websocket.Client
	if cfg.WebSocketEnabled() {
		wsClient = websocket.NewClient(cfg.WebSocket.URL, cfg.WebSocket.Token, logger)
		dispatcher.AddSink("websocket", wsClient)
		coordinator.Register("websocket", wsClient)
	}

	collector := stats.NewCollector(logger)
	if snap, err := collector.Collect(ctx); err != nil {
		logger.Warn("failed to read host stats", slog.String("error", err.Error()))
	} else {
		logger.Info("host status",
			slog.Float64("load1", snap.Load1),
			slog.Float64("memory_pct", snap.MemoryPct),
			slog.Int("num_cpu", snap.NumCPU),
			slog.Uint64("uptime", snap.Uptime),
		)
	}

	deps := job.Deps{
		Runner:    executor.New(),
		Requester: client.New(logger),
		Load:      collector,
		Logger:    logger,
	}
	jobs, err := buildJobs(cfg.Jobs, deps)
	if err != nil {
		// Close the sinks opened above before bailing out.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(err, coordinator.Shutdown(shutdownCtx))
	}

	sched := scheduler.New(scheduler.Options{
		Interval: cfg.PollDuration(),
		Hooks:    dispatcher.Hooks(),
		Logger:   logger,
	})
	for _, j := range jobs {
		sched.Register(j)
	}
	coordinator.Register("scheduler", sched)

	g, gctx := errgroup.WithContext(ctx)

	sched.Start(ctx)

	systemd.NotifyReady()
	systemd.NotifyStatus("%d jobs scheduled", sched.JobCount())
	logger.Info("tinycron ready")

	g.Go(func() error {
		return systemd.Watchdog(gctx, sched.IsHealthy)
	})

	if wsClient != nil {
		g.Go(func() error {
			return wsClient.Run(gctx)
		})
	}

	if cfg.Watch {
		r := &reloader{current: cfg, sched: sched, deps: deps, logger: logger}
		watcher := config.NewWatcher(configPath, r.apply, logger)
		g.Go(func() error {
			if err := watcher.Run(gctx); err != nil {
				logger.Warn("config watching disabled", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Wait for shutdown signal
	<-gctx.Done()
	logger.Info("shutdown signal received, starting graceful shutdown")

	systemd.NotifyStopping()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	shutdownErr := coordinator.Shutdown(shutdownCtx)
	groupErr := g.Wait()
	if err := errors.Join(shutdownErr, groupErr); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("shutdown complete")
	return nil
}

// reloader swaps in the jobs of each changed config. Settings other than
// jobs only take effect after a restart.
type reloader struct {
	mu      sync.Mutex
	current *config.Config
	sched   *scheduler.Scheduler
	deps    job.Deps
	logger  *slog.Logger
}

func (r *reloader) apply(next *config.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()

	systemd.NotifyReloading()
	defer systemd.NotifyReady()

	jobs, err := buildJobs(next.Jobs, r.deps)
	if err != nil {
		r.logger.Warn("config reload rejected, keeping previous jobs",
			slog.String("error", err.Error()),
		)
		return
	}

	if next.PollInterval != r.current.PollInterval || next.LogLevel != r.current.LogLevel {
		r.logger.Warn("poll_interval and log_level changes take effect after a restart")
	}

	r.sched.Sync(jobs)
	r.current = next
	systemd.NotifyStatus("%d jobs scheduled", r.sched.JobCount())
}
