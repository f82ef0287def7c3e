package store

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/poiesic/answerbank/core"
)

const defaultSettle = 200 * time.Millisecond

// Watcher reloads the live snapshot when another process publishes a new
// version under the same root.
type Watcher struct {
	layout    Layout
	live      *Live
	signature core.Signature
	loadOpts  []LoadOption
	settle    time.Duration
	onReload  func(*Snapshot, error)
	logger    *slog.Logger
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets the watcher's logger.
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithSettle sets how long the watcher waits for CURRENT to stop changing
// before reloading.
func WithSettle(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.settle = d
	}
}

// WithReloadHook registers fn to run after every reload attempt. On success
// the new snapshot is passed with a nil error.
func WithReloadHook(fn func(*Snapshot, error)) WatcherOption {
	return func(w *Watcher) {
		w.onReload = fn
	}
}

// WithLoadOptions sets the options used when loading new versions.
func WithLoadOptions(opts ...LoadOption) WatcherOption {
	return func(w *Watcher) {
		w.loadOpts = append(w.loadOpts, opts...)
	}
}

// NewWatcher creates a watcher that keeps live in step with layout.
func NewWatcher(layout Layout, live *Live, signature core.Signature, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		layout:    layout,
		live:      live,
		signature: signature,
		settle:    defaultSettle,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	w.logger = w.logger.With("component", "store_watcher", "root", layout.Root)
	return w
}

// Run watches the corpus root until ctx is canceled. A failed reload is
// logged and the previous snapshot stays live.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(w.layout.Root); err != nil {
		return err
	}
	w.logger.Debug("watching for published versions")

	timer := time.NewTimer(w.settle)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if isCurrentEvent(event) {
				timer.Reset(w.settle)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		case <-timer.C:
			w.reload(ctx)
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	swapped, err := Refresh(ctx, w.layout, w.live, w.signature, w.loadOpts...)
	if err != nil {
		w.logger.Error("reload failed, keeping current version", "error", err)
		if w.onReload != nil {
			w.onReload(nil, err)
		}
		return
	}
	if !swapped {
		return
	}
	s, err := w.live.Current()
	if err == nil {
		w.logger.Info("reloaded store", "build", s.Build())
	}
	if w.onReload != nil {
		w.onReload(s, err)
	}
}

// isCurrentEvent reports whether event may have replaced the CURRENT file.
// Publishing renames a temp file over CURRENT, which surfaces as Create.
func isCurrentEvent(event fsnotify.Event) bool {
	if filepath.Base(event.Name) != CurrentFile {
		return false
	}
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Rename)
}
