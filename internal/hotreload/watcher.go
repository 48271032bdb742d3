package hotreload

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Event represents a file system event on a watched file
type Event struct {
	Path string
	Op   fsnotify.Op
}

// Watcher reports changes to individual files. It watches their parent
// directories so editors that replace a file by renaming keep being seen.
type Watcher struct {
	watcher *fsnotify.Watcher
	logger  *zap.Logger
	events  chan Event
	done    chan struct{}
	wg      sync.WaitGroup

	mu      sync.RWMutex
	files   map[string]bool
	dirs    map[string]int
	started bool
	closed  bool
}

// NewWatcher creates a new file watcher
func NewWatcher(logger *zap.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Watcher{
		watcher: fsWatcher,
		logger:  logger,
		events:  make(chan Event, 100),
		done:    make(chan struct{}),
		files:   make(map[string]bool),
		dirs:    make(map[string]int),
	}, nil
}

// Add starts reporting changes to path.
func (w *Watcher) Add(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}
	if w.files[absPath] {
		return nil
	}

	dir := filepath.Dir(absPath)
	if w.dirs[dir] == 0 {
		if err := w.watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to add path %s: %w", dir, err)
		}
	}
	w.dirs[dir]++
	w.files[absPath] = true

	w.logger.Debug("Added watch path", zap.String("path", absPath))
	return nil
}

// Remove stops reporting changes to path.
func (w *Watcher) Remove(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}
	if !w.files[absPath] {
		return fmt.Errorf("path %s is not watched", absPath)
	}
	delete(w.files, absPath)

	dir := filepath.Dir(absPath)
	w.dirs[dir]--
	if w.dirs[dir] == 0 {
		delete(w.dirs, dir)
		if err := w.watcher.Remove(dir); err != nil {
			return fmt.Errorf("failed to remove path %s: %w", dir, err)
		}
	}

	w.logger.Debug("Removed watch path", zap.String("path", absPath))
	return nil
}

// Paths lists the watched files.
func (w *Watcher) Paths() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]string, 0, len(w.files))
	for p := range w.files {
		out = append(out, p)
	}
	return out
}

// Events returns the channel for file events. It is closed by Close.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Start begins watching for file system events
func (w *Watcher) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.closed {
		return
	}
	w.started = true

	w.wg.Add(1)
	go w.watch()
	w.logger.Info("File watcher started")
}

// Close stops the watcher and releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	close(w.done)
	w.wg.Wait()
	close(w.events)

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close file watcher: %w", err)
	}
	w.logger.Info("File watcher stopped")
	return nil
}

// IsWatching returns whether the watcher is currently active
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.started && !w.closed
}

func (w *Watcher) watch() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}

			w.logger.Debug("File system event",
				zap.String("path", event.Name),
				zap.String("operation", event.Op.String()),
			)
			select {
			case w.events <- Event{Path: event.Name, Op: event.Op}:
			case <-w.done:
				return
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if shouldSkipEvent(event.Name) {
		return false
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.files[filepath.Clean(event.Name)]
}

// shouldSkipEvent filters editor temporaries and hidden files.
func shouldSkipEvent(path string) bool {
	base := filepath.Base(path)
	switch filepath.Ext(path) {
	case ".tmp", ".swp":
		return true
	}
	return strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~")
}
