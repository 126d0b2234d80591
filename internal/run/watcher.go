package run

import (
	"context"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatcherConfig configures the input-root watcher.
type WatcherConfig struct {
	// Debounce is how long to wait after the last change before firing.
	// Multiple changes within this window are batched together.
	Debounce time.Duration

	// Patterns is the glob suffix family a changed file must match.
	Patterns []string
}

// DefaultWatcherConfig returns sensible watcher defaults.
func DefaultWatcherConfig(patterns []string) WatcherConfig {
	return WatcherConfig{
		Debounce: 500 * time.Millisecond,
		Patterns: patterns,
	}
}

// Watcher monitors the input root for new or modified candidate files so a
// run can be retriggered without restarting the process. Triggers are
// strictly serialized: the callback for one batch of changes returns before
// the next fires, preserving the single-run-at-a-time guarantee.
type Watcher struct {
	config  WatcherConfig
	watcher *fsnotify.Watcher
	root    string

	pendingMu sync.Mutex
	pending   int
}

// NewWatcher creates a watcher for the given input root.
func NewWatcher(root string, cfg WatcherConfig) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		config:  cfg,
		watcher: fsWatcher,
		root:    root,
	}, nil
}

// Start watches until ctx is canceled, invoking onChange after each
// debounced batch of candidate-file changes.
func (w *Watcher) Start(ctx context.Context, onChange func()) error {
	if err := w.addRecursive(w.root); err != nil {
		return err
	}

	var timer *time.Timer
	fired := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}

			// New directories need watching too.
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if err := w.addRecursive(event.Name); err != nil {
					log.Printf("warning: cannot watch %s: %v", event.Name, err)
				}
				continue
			}

			if !matchesAny(filepath.Base(event.Name), w.config.Patterns) {
				continue
			}

			w.pendingMu.Lock()
			w.pending++
			w.pendingMu.Unlock()

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.config.Debounce, func() {
				select {
				case fired <- struct{}{}:
				default:
				}
			})

		case <-fired:
			w.pendingMu.Lock()
			n := w.pending
			w.pending = 0
			w.pendingMu.Unlock()

			if n > 0 {
				onChange()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("warning: watch error: %v", err)
		}
	}
}

// Close releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// addRecursive watches root and every directory below it.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if addErr := w.watcher.Add(path); addErr != nil {
				log.Printf("warning: cannot watch %s: %v", path, addErr)
			}
		}
		return nil
	})
}

// Watch performs an initial run, then re-runs whenever candidate files
// change, until ctx is canceled.
func (o *Orchestrator) Watch(ctx context.Context) error {
	if _, err := o.Run(ctx); err != nil {
		return err
	}

	watcher, err := NewWatcher(o.cfg.InputRoot, DefaultWatcherConfig(o.cfg.Patterns))
	if err != nil {
		return err
	}
	defer watcher.Close()

	return watcher.Start(ctx, func() {
		if _, err := o.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("watch run failed: %v", err)
		}
	})
}
