package service

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/arcfront/shellbus/config"
)

const defaultDebounce = 300 * time.Millisecond

// Watcher re-reads the remotes manifest whenever it changes on disk and
// swaps the shell's loader set. A manifest that fails to parse is rejected
// and the running set stays untouched.
type Watcher struct {
	path     string
	shell    *ShellService
	log      *slog.Logger
	debounce time.Duration

	fsw    *fsnotify.Watcher
	cancel context.CancelFunc
	done   chan struct{}
}

type WatchOption func(*Watcher)

func WithWatchLogger(log *slog.Logger) WatchOption {
	return func(w *Watcher) {
		if log != nil {
			w.log = log
		}
	}
}

// WithDebounce tunes how long bursts of file events coalesce before a
// reload. Editors tend to write a file several times per save.
func WithDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher prepares a watcher for the manifest at path. We watch the
// parent directory rather than the file itself so rename-and-replace saves
// keep delivering events.
func NewWatcher(path string, shell *ShellService, opts ...WatchOption) (*Watcher, error) {
	w := &Watcher{
		path:     filepath.Clean(path),
		shell:    shell,
		log:      slog.Default(),
		debounce: defaultDebounce,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	w.fsw = fsw
	return w, nil
}

// Start launches the watch loop.
func (w *Watcher) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	go w.loop(ctx)
	w.log.Info("REGISTRY_WATCH_STARTED", "path", w.path)
}

// Close stops the loop and releases the inotify handle. [IDEMPOTENT]
func (w *Watcher) Close() error {
	if w.cancel == nil {
		return w.fsw.Close()
	}
	w.cancel()
	err := w.fsw.Close()
	<-w.done
	return err
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			// Coalesce event bursts into one reload.
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(w.debounce, func() {
				w.reload(ctx)
			})

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Error("REGISTRY_WATCH_ERROR", "err", err)
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	remotes, err := config.ReadRemotesFile(w.path)
	if err != nil {
		// Keep serving the last good set.
		w.log.Error("REGISTRY_RELOAD_REJECTED", "path", w.path, "err", err)
		return
	}
	if err := w.shell.reload(ctx, remotes, w.path); err != nil {
		if errors.Is(err, ErrShellClosed) {
			return
		}
		w.log.Error("REGISTRY_RELOAD_REJECTED", "path", w.path, "err", err)
	}
}
