// Package watch reloads a plan document whenever it changes on disk.
package watch

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dd0wney/posh-debugger/pkg/logging"
	"github.com/dd0wney/posh-debugger/pkg/plan/xposh"
)

// DefaultDebounce is how long a plan file must stay quiet before it is
// reloaded.
const DefaultDebounce = 300 * time.Millisecond

// Loader loads a plan file and publishes it.
type Loader interface {
	LoadFile(path string) (*xposh.Result, error)
}

// Stats tracks watcher activity.
type Stats struct {
	Events        int
	Reloads       int
	FailedReloads int
	LastReload    time.Time
	LastError     string
}

// Watcher reloads one plan file through a Loader. The file's directory is
// watched rather than the file itself so that editors which save by
// renaming a temporary file are still seen.
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	loader   Loader
	path     string
	debounce time.Duration
	logger   logging.Logger
	onReload func(*xposh.Result)

	pending time.Time
	stats   Stats

	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
	closed  bool
}

// Config configures a Watcher.
type Config struct {
	Path     string
	Debounce time.Duration
	Logger   logging.Logger
	// OnReload is called after every successful reload.
	OnReload func(*xposh.Result)
}

// New creates a watcher for cfg.Path.
func New(loader Loader, cfg Config) (*Watcher, error) {
	if cfg.Path == "" {
		return nil, errors.New("watch: plan path is required")
	}
	path, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}

	return &Watcher{
		watcher:  fw,
		loader:   loader,
		path:     path,
		debounce: cfg.Debounce,
		logger:   logging.OrDefault(cfg.Logger).With(logging.Component("plan-watch"), logging.Path(path)),
		onReload: cfg.OnReload,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching. It does not block.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running || w.closed {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}
	w.logger.Info("watching plan file")

	go w.run(ctx)
	return nil
}

// Stop stops the watcher, waits for its loop to exit and releases the
// underlying notifier. It is safe to call more than once, and on a watcher
// that was never started.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	wasRunning := w.running
	w.running = false
	w.mu.Unlock()

	if wasRunning {
		close(w.stopCh)
		<-w.doneCh
	}

	if err := w.watcher.Close(); err != nil {
		w.logger.Error("closing watcher", logging.Error(err))
	}
}

// Stats returns a copy of the watcher's counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := w.debounce / 3
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watch error", logging.Error(err))

		case <-ticker.C:
			w.reloadIfSettled()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return
	}

	w.mu.Lock()
	w.stats.Events++
	w.pending = time.Now()
	w.mu.Unlock()

	w.logger.Debug("plan file changed", logging.String("op", event.Op.String()))
}

func (w *Watcher) reloadIfSettled() {
	w.mu.Lock()
	if w.pending.IsZero() || time.Since(w.pending) < w.debounce {
		w.mu.Unlock()
		return
	}
	w.pending = time.Time{}
	w.mu.Unlock()

	w.Reload()
}

// Reload loads the plan file now. A failed reload leaves the previously
// published graph in place.
func (w *Watcher) Reload() {
	res, err := w.loader.LoadFile(w.path)

	w.mu.Lock()
	if err != nil {
		w.stats.FailedReloads++
		w.stats.LastError = err.Error()
	} else {
		w.stats.Reloads++
		w.stats.LastReload = time.Now()
		w.stats.LastError = ""
	}
	w.mu.Unlock()

	if err != nil {
		w.logger.Warn("plan reload failed, keeping previous graph", logging.Error(err))
		return
	}
	w.logger.Info("plan reloaded", logging.Uint64("generation", res.Generation))
	if w.onReload != nil {
		w.onReload(res)
	}
}
