package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mozilla/gecko-dev-sub036/internal/syslog"
)

// WatchCallback receives every successfully reloaded configuration.
type WatchCallback func(Config)

const debounceInterval = 100 * time.Millisecond

// Watcher reloads a configuration file when it changes on disk.
type Watcher struct {
	mu            sync.Mutex
	watcher       *fsnotify.Watcher
	path          string
	callback      WatchCallback
	debounceTimer *time.Timer
	closed        bool
	done          chan struct{}
}

// NewWatcher watches path, which must be set. The parent directory is
// watched as well so that editors replacing the file are noticed.
func NewWatcher(path string, callback WatchCallback) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch directory: %w", err)
	}
	if _, err := os.Stat(absPath); err == nil {
		if err := watcher.Add(absPath); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("failed to watch file: %w", err)
		}
	}

	w := &Watcher{
		watcher:  watcher,
		path:     absPath,
		callback: callback,
		done:     make(chan struct{}),
	}
	go w.watchLoop()
	return w, nil
}

func (w *Watcher) watchLoop() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}

			w.mu.Lock()
			if event.Has(fsnotify.Create) {
				_ = w.watcher.Add(w.path)
			}
			if w.debounceTimer != nil {
				w.debounceTimer.Stop()
			}
			if !w.closed {
				w.debounceTimer = time.AfterFunc(debounceInterval, w.reload)
			}
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			syslog.L.Error(err).WithMessage("config watcher error").WithField("path", w.path).Write()
		}
	}
}

func (w *Watcher) reload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	cfg, err := LoadFile(w.path)
	if err != nil {
		syslog.L.Error(err).WithMessage("failed to reload config").WithField("path", w.path).Write()
		return
	}
	if w.callback != nil {
		w.callback(cfg)
	}
}

// Close stops watching. No callback runs after Close returns.
func (w *Watcher) Close() error {
	w.mu.Lock()
	w.closed = true
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.mu.Unlock()

	err := w.watcher.Close()
	<-w.done
	return err
}
