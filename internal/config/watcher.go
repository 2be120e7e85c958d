package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the burst of events editors produce on save.
const DefaultDebounce = 250 * time.Millisecond

// Watcher reloads the config file when it changes and hands each valid
// result to a callback. Invalid files are logged and ignored so the
// daemon keeps running the last good job set.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func(*Config)
	logger   *slog.Logger
}

// NewWatcher creates a watcher for the config file at path.
func NewWatcher(path string, onChange func(*Config), logger *slog.Logger) *Watcher {
	return &Watcher{
		path:     path,
		debounce: DefaultDebounce,
		onChange: onChange,
		logger:   logger.With(slog.String("component", "config-watcher")),
	}
}

// Run watches until ctx is cancelled. The directory is watched rather than
// the file so atomic rename-on-save is seen.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	name := filepath.Base(w.path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w.logger.Info("watching config", slog.String("path", w.path))

	// Reloads run on this goroutine, one at a time and in event order.
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pending:
			pending = nil
			w.reload()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.logger.Debug("config change detected", slog.String("op", ev.Op.String()))
				pending = time.After(w.debounce)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watch error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("config reload rejected, keeping previous jobs",
			slog.String("path", w.path),
			slog.String("error", err.Error()),
		)
		return
	}
	w.logger.Info("config reloaded", slog.Int("jobs", len(cfg.Jobs)))
	w.onChange(cfg)
}
