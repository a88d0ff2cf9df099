package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce is the window used to coalesce rapid config edits.
const DefaultWatchDebounce = 500 * time.Millisecond

// Watcher reports debounced changes to the archive configuration file.
// The data directory is watched rather than the file itself so that editors
// that replace the file (write to temp, rename over) stay visible.
type Watcher struct {
	dir      string
	debounce time.Duration
	logger   *slog.Logger

	fsw     *fsnotify.Watcher
	changes chan struct{}

	mu       sync.Mutex
	timer    *time.Timer
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWatcher creates a watcher for the config file of the archive rooted at
// root. A debounce of zero or less uses DefaultWatchDebounce.
func NewWatcher(root string, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	dir := DataDir(root)
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	return &Watcher{
		dir:      dir,
		debounce: debounce,
		logger:   logger,
		fsw:      fsw,
		changes:  make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}, nil
}

// Start begins forwarding change notifications. It returns immediately;
// the watch loop runs until Stop is called.
func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.loop()
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config_watch_error", slog.String("error", err.Error()))
		}
	}
}

// handle filters for the config file and schedules a debounced notification.
func (w *Watcher) handle(event fsnotify.Event) {
	base := filepath.Base(event.Name)
	if base != ConfigFileName && base != "config.yaml" {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.notify)
}

// notify delivers one coalesced change signal.
func (w *Watcher) notify() {
	select {
	case w.changes <- struct{}{}:
	default:
		// a pending signal already covers this change
	}
}

// Changes returns the channel of debounced change signals. At most one
// signal is pending at a time; rapid edits coalesce into one.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

// Stop stops the watcher and releases resources. Safe to call multiple
// times.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
		_ = w.fsw.Close()
		w.wg.Wait()
	})
}
