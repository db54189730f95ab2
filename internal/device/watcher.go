package device

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultSettleDelay lets udev finish creating or removing a burst of nodes
// before a single refresh is triggered.
const DefaultSettleDelay = 250 * time.Millisecond

// TriggerFunc runs one enumeration pass. reason is "initial", "poll" or "fsnotify".
type TriggerFunc func(ctx context.Context, reason string)

// Watcher decides when to enumerate: once at start, on every poll tick and
// shortly after a create/remove/rename in any watched directory.
// When fsnotify is unavailable it keeps polling.
type Watcher struct {
	interval time.Duration
	paths    []string
	settle   time.Duration
	trigger  TriggerFunc
}

// NewWatcher creates a watcher. An interval <= 0 disables polling.
func NewWatcher(interval time.Duration, paths []string, trigger TriggerFunc) *Watcher {
	return &Watcher{
		interval: interval,
		paths:    paths,
		settle:   DefaultSettleDelay,
		trigger:  trigger,
	}
}

// SetSettleDelay overrides DefaultSettleDelay
func (w *Watcher) SetSettleDelay(d time.Duration) {
	w.settle = d
}

// Run blocks until ctx is cancelled
func (w *Watcher) Run(ctx context.Context) error {
	w.trigger(ctx, "initial")

	var tick <-chan time.Time
	if w.interval > 0 {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	var events <-chan fsnotify.Event
	var watchErrors <-chan error
	if len(w.paths) > 0 {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			slog.Warn("fsnotify not available, falling back to polling", "error", err)
		} else {
			defer func() {
				if err := watcher.Close(); err != nil {
					slog.Debug("Failed to close device watcher", "error", err)
				}
			}()
			watched := 0
			for _, p := range w.paths {
				if err := watcher.Add(p); err != nil {
					slog.Warn("Failed to watch device directory", "path", p, "error", err)
					continue
				}
				watched++
			}
			if watched > 0 {
				events = watcher.Events
				watchErrors = watcher.Errors
				slog.Debug("Device watcher started", "paths", w.paths, "poll_interval", w.interval)
			}
		}
	}

	var settle <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-tick:
			w.trigger(ctx, "poll")

		case event, ok := <-events:
			if !ok {
				slog.Info("Device watcher closed, continuing with polling")
				events = nil
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				slog.Debug("Device node changed", "path", event.Name, "op", event.Op.String())
				if settle == nil {
					settle = time.After(w.settle)
				}
			}

		case err, ok := <-watchErrors:
			if !ok {
				watchErrors = nil
				continue
			}
			slog.Warn("Device watcher error", "error", err)

		case <-settle:
			settle = nil
			w.trigger(ctx, "fsnotify")
		}
	}
}
