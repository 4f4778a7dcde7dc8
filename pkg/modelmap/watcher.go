package modelmap

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the model map when its file changes on disk. Rapid
// event bursts (editors write, chmod, then rename) are debounced so a
// save triggers one reload.
type Watcher struct {
	path     string
	table    *Table
	logger   *slog.Logger
	interval time.Duration

	watcher  *fsnotify.Watcher
	debounce *debouncer
}

// NewWatcher creates a watcher for the mapping file at path, reloading
// into table. A zero interval uses a 100ms debounce.
func NewWatcher(path string, table *Table, interval time.Duration, logger *slog.Logger) (*Watcher, error) {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		path:     path,
		table:    table,
		logger:   logger,
		interval: interval,
		watcher:  fsw,
		debounce: newDebouncer(interval),
	}, nil
}

// Watch blocks, reloading the table on file changes, until ctx is
// cancelled. The parent directory is watched rather than the file itself
// so that atomic saves (write to temp, rename over) keep working.
func (w *Watcher) Watch(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch directory %q: %w", dir, err)
	}

	w.logger.Info("model map watcher started",
		"path", w.path,
		"debounce_ms", w.interval.Milliseconds(),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("model map watcher stopped")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !w.matches(event) {
				continue
			}
			w.logger.Debug("model map file event", "op", event.Op.String())
			w.debounce.trigger(w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			// Keep watching; a transient fs error must not kill reloads.
			w.logger.Error("model map watcher error", "error", err)
		}
	}
}

// Close releases the underlying fsnotify watcher and cancels any pending
// debounced reload.
func (w *Watcher) Close() error {
	w.debounce.stop()
	return w.watcher.Close()
}

func (w *Watcher) matches(event fsnotify.Event) bool {
	if event.Op&fsnotify.Chmod == fsnotify.Chmod {
		return false
	}
	return filepath.Clean(event.Name) == filepath.Clean(w.path)
}

func (w *Watcher) reload() {
	if err := w.table.Reload(w.path); err != nil {
		// Previous mapping stays active on a bad file.
		w.logger.Error("model map reload failed", "path", w.path, "error", err)
		return
	}
	w.logger.Info("model map reloaded", "path", w.path, "models", w.table.Len())
}

// debouncer collapses rapid triggers into one callback after a quiet
// period.
type debouncer struct {
	interval time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

func newDebouncer(interval time.Duration) *debouncer {
	return &debouncer{interval: interval}
}

func (d *debouncer) trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, fn)
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
