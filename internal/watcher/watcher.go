// Package watcher reloads the menu configuration when its file changes on
// disk. It watches the file's directory rather than the file itself, since
// most editors save by writing a temp file and renaming it over the
// original, which replaces the watched inode.
package watcher

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceInterval = 500 * time.Millisecond

// ReloadCallback is called with the config path after a change settles.
type ReloadCallback func(path string)

// Watcher monitors a single configuration file.
type Watcher struct {
	path      string
	callback  ReloadCallback
	logger    *slog.Logger
	fsWatcher *fsnotify.Watcher
	cancel    chan struct{}

	mu    sync.Mutex
	timer *time.Timer
}

// New starts watching path. The callback runs on an internal goroutine
// after changes have been quiet for the debounce interval.
func New(path string, callback ReloadCallback, logger *slog.Logger) (*Watcher, error) {
	fsW, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		fsW.Close()
		return nil, err
	}
	if err := fsW.Add(filepath.Dir(abs)); err != nil {
		fsW.Close()
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}
	w := &Watcher{
		path:      abs,
		callback:  callback,
		logger:    logger,
		fsWatcher: fsW,
		cancel:    make(chan struct{}),
	}

	go w.watchLoop()
	return w, nil
}

// watchLoop processes fsnotify events with debouncing, ignoring changes to
// sibling files in the config's directory.
func (w *Watcher) watchLoop() {
	for {
		select {
		case <-w.cancel:
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.timer = time.AfterFunc(debounceInterval, func() {
				w.logger.Info("config changed, reloading", "path", w.path)
				w.callback(w.path)
			})
			w.mu.Unlock()

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", "err", err)
		}
	}
}

// Close stops the watcher. A pending debounced reload is cancelled.
func (w *Watcher) Close() {
	close(w.cancel)
	w.fsWatcher.Close()

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
}
