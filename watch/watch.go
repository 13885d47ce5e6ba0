// Package watch triggers a callback when files under a directory tree change.
package watch

import (
	"context"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period before a burst of events fires the callback.
const DefaultDebounce = 2 * time.Second

// Config controls which paths are watched.
type Config struct {
	// Debounce delays the callback until no events arrived for this long.
	// Default: 2s
	Debounce time.Duration

	// ExcludeDirs are directory names never watched, wherever they appear.
	ExcludeDirs []string

	// ExcludeGlobs are doublestar patterns matched against slash-separated
	// paths relative to the root.
	ExcludeGlobs []string
}

// Watcher watches a directory tree recursively. fsnotify watches are not
// recursive, so directories created later are added as they appear.
type Watcher struct {
	root     string
	config   Config
	onChange func(ctx context.Context)
	excluded map[string]bool

	fsWatcher *fsnotify.Watcher
	mu        sync.Mutex
}

// New watches root and calls onChange after each debounced burst of changes.
func New(root string, config Config, onChange func(ctx context.Context)) (*Watcher, error) {
	if config.Debounce <= 0 {
		config.Debounce = DefaultDebounce
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:      filepath.Clean(root),
		config:    config,
		onChange:  onChange,
		excluded:  make(map[string]bool, len(config.ExcludeDirs)),
		fsWatcher: fsWatcher,
	}
	for _, name := range config.ExcludeDirs {
		w.excluded[name] = true
	}

	if err := w.addTree(w.root); err != nil {
		fsWatcher.Close()
		return nil, err
	}
	return w, nil
}

// addTree adds dir and every non-excluded directory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// The root must exist; vanished subdirectories are fine.
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.ignored(path) {
			return filepath.SkipDir
		}
		w.mu.Lock()
		err = w.fsWatcher.Add(path)
		w.mu.Unlock()
		if err != nil {
			log.Printf("[WATCH] Failed to watch %s: %v", path, err)
		}
		return nil
	})
}

func (w *Watcher) ignored(path string) bool {
	if w.excluded[filepath.Base(path)] {
		return true
	}
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, pattern := range w.config.ExcludeGlobs {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	// Events for files inside an excluded directory can still arrive from
	// the parent's watch during creation.
	for dir := filepath.Dir(path); len(dir) > len(w.root); dir = filepath.Dir(dir) {
		if w.excluded[filepath.Base(dir)] {
			return true
		}
	}
	return false
}

// Run delivers debounced callbacks until ctx is cancelled. Callbacks never
// overlap; changes that arrive during a callback schedule another one.
func (w *Watcher) Run(ctx context.Context) error {
	log.Printf("[WATCH] Watching %s", w.root)

	timer := time.NewTimer(w.config.Debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			if event.Op == fsnotify.Chmod || w.ignored(event.Name) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					w.addTree(event.Name)
				}
			}
			if pending {
				timer.Stop()
				select {
				case <-timer.C:
				default:
				}
			}
			pending = true
			timer.Reset(w.config.Debounce)

		case <-timer.C:
			pending = false
			w.onChange(ctx)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("[WATCH] Watcher error: %v", err)
		}
	}
}

// Close releases the underlying watches.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fsWatcher.Close()
}
