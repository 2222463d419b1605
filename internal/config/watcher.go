package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/makapix/agent-core/internal/corelog"
	"github.com/makapix/agent-core/internal/corerrors"
)

// ResetCallback is invoked when the reset-marker file configured as
// ResetMarker appears on disk, e.g. dropped by an out-of-process factory
// reset tool.
type ResetCallback func()

// Watcher watches the config file for external edits and the reset-marker
// sentinel, the way am.ConfigWatcher watches its own config file, debounced
// to avoid reacting to a burst of filesystem events as several resets.
// Only reset-marker events trigger callbacks; events on the config file
// itself are received and ignored.
type Watcher struct {
	watcher   *fsnotify.Watcher
	resetPath string

	mu            sync.Mutex
	onReset       []ResetCallback
	debounce      *time.Timer
	debouncePeriod time.Duration
}

// NewWatcher watches configPath (if non-empty) and resetPath for changes.
func NewWatcher(configPath, resetPath string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, corerrors.Wrap(err, "creating fsnotify watcher")
	}
	if configPath != "" {
		if err := fw.Add(configPath); err != nil {
			fw.Close()
			return nil, corerrors.Wrapf(err, "watching config file %s", configPath)
		}
	}
	// The reset marker does not exist yet when the watcher starts; watch its
	// parent directory so its Create event is observed (fsnotify cannot
	// watch a not-yet-existing path directly).
	if resetPath != "" {
		if err := fw.Add(filepath.Dir(resetPath)); err != nil {
			fw.Close()
			return nil, corerrors.Wrapf(err, "watching reset marker directory for %s", resetPath)
		}
	}
	w := &Watcher{watcher: fw, resetPath: resetPath, debouncePeriod: 500 * time.Millisecond}
	return w, nil
}

// OnReset registers a callback fired (debounced) when the reset marker
// appears.
func (w *Watcher) OnReset(cb ResetCallback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onReset = append(w.onReset, cb)
}

// Start begins the watch loop in its own task.
func (w *Watcher) Start() {
	go w.loop()
}

func (w *Watcher) loop() {
	log := corelog.For("config")
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Name == w.resetPath && (ev.Op&fsnotify.Create != 0 || ev.Op&fsnotify.Write != 0) {
				w.debounced(func() {
					log.Infow("reset marker observed", "path", ev.Name)
					w.mu.Lock()
					cbs := append([]ResetCallback(nil), w.onReset...)
					w.mu.Unlock()
					for _, cb := range cbs {
						cb()
					}
				})
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warnw("watcher error", "error", err)
		}
	}
}

func (w *Watcher) debounced(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(w.debouncePeriod, fn)
}

// Close releases the underlying fsnotify resources.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
