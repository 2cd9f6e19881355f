package config

import (
	"context"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadCallback is called with the freshly loaded configuration when the
// watched config file changes on disk.
type ReloadCallback func(*RunConfiguration)

// Watcher reloads the configuration file when it changes between runs.
// A run in flight is never affected: the engine holds its own immutable
// RunConfiguration copy for the run's duration.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	callback ReloadCallback
	debounce time.Duration

	timer  *time.Timer
	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewWatcher creates a watcher for the given config file path
func NewWatcher(path string, callback ReloadCallback) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory: editors typically replace the file, which would
	// otherwise drop a watch on the file itself.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}

	return &Watcher{
		path:     path,
		watcher:  fsw,
		callback: callback,
		debounce: 500 * time.Millisecond,
	}, nil
}

// Start begins watching for config file changes
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
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
				log.Printf("config watcher: %v", err)
			}
		}
	}()
}

// Stop stops watching
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.watcher.Close()
}

// SetDebounce sets the debounce interval for batching rapid writes
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounce = d
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != filepath.Clean(w.path) {
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
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		log.Printf("reloading config %s: %v", w.path, err)
		return
	}
	if w.callback != nil {
		w.callback(cfg)
	}
}
