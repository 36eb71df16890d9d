package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FSNotifyWatcher implements the Watcher interface using fsnotify
type FSNotifyWatcher struct {
	watcher      *fsnotify.Watcher
	eventChan    chan Event
	errorChan    chan error
	filter       *Filter
	config       WatcherConfig
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	mu           sync.RWMutex
	closeOnce    sync.Once
	watchedPaths map[string]bool
	logger       *slog.Logger
}

// NewFSNotifyWatcher creates a new fsnotify-based watcher
func NewFSNotifyWatcher(config WatcherConfig) (*FSNotifyWatcher, error) {
	if config.QueueCapacity <= 0 {
		config.QueueCapacity = DefaultConfig().QueueCapacity
	}

	filter, err := NewFilter(config)
	if err != nil {
		return nil, err
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create fsnotify watcher: %v", ErrWatchSetupFailure, err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &FSNotifyWatcher{
		watcher:      fsWatcher,
		eventChan:    make(chan Event, config.QueueCapacity),
		errorChan:    make(chan error, 16),
		filter:       filter,
		config:       config,
		ctx:          ctx,
		cancel:       cancel,
		watchedPaths: make(map[string]bool),
		logger:       slog.Default().With("component", "fsnotify_watcher"),
	}, nil
}

// Start begins watching the specified paths. Failing to attach to one of
// the paths themselves is a setup failure; unreadable subdirectories are
// logged and skipped.
func (w *FSNotifyWatcher) Start(ctx context.Context, paths []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// roots are registered first so the initial walk already skips ignored folders
	for _, path := range paths {
		w.filter.AddRoot(path)
	}
	for _, path := range paths {
		if err := w.addPath(path); err != nil {
			return err
		}
		w.watchedPaths[path] = true
	}

	w.wg.Add(1)
	go w.watchLoop(ctx)

	w.logger.Info("FSNotify watcher started", "paths", len(paths))
	return nil
}

// Events returns the event channel
func (w *FSNotifyWatcher) Events() <-chan Event {
	return w.eventChan
}

// Errors returns the error channel
func (w *FSNotifyWatcher) Errors() <-chan error {
	return w.errorChan
}

// Add adds paths to watch
func (w *FSNotifyWatcher) Add(paths ...string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, path := range paths {
		if err := w.addPath(path); err != nil {
			return err
		}
		w.watchedPaths[path] = true
	}

	w.logger.Debug("Added paths to watcher", "count", len(paths))
	return nil
}

// Remove removes paths from watching
func (w *FSNotifyWatcher) Remove(paths ...string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, path := range paths {
		if err := w.watcher.Remove(path); err != nil {
			w.logger.Warn("Failed to remove path from watcher", "path", path, "error", err)
		}
		delete(w.watchedPaths, path)
	}

	w.logger.Debug("Removed paths from watcher", "count", len(paths))
	return nil
}

// Close stops watching and cleans up resources
func (w *FSNotifyWatcher) Close() error {
	w.closeOnce.Do(func() {
		w.cancel()

		if err := w.watcher.Close(); err != nil {
			w.logger.Warn("Error closing fsnotify watcher", "error", err)
		}

		w.wg.Wait()

		close(w.eventChan)
		close(w.errorChan)

		w.logger.Info("FSNotify watcher closed")
	})
	return nil
}

// addPath attaches the watcher to path and, when recursive, every
// directory below it.
func (w *FSNotifyWatcher) addPath(rootPath string) error {
	if err := w.watcher.Add(rootPath); err != nil {
		return fmt.Errorf("%w: failed to add path %s: %v", ErrWatchSetupFailure, rootPath, err)
	}
	if !w.config.Recursive {
		return nil
	}

	return filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("Skipping unreadable path", "path", path, "error", err)
			if d != nil && d.IsDir() && path != rootPath {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() || path == rootPath {
			return nil
		}
		if w.filter.Ignored(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("Failed to add subdirectory to watcher", "path", path, "error", err)
		}
		return nil
	})
}

// watchLoop is the main event processing loop
func (w *FSNotifyWatcher) watchLoop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			watcherEvent := w.convertEvent(event)
			if watcherEvent == nil || w.filter.Ignored(watcherEvent.Path) {
				continue
			}

			w.emit(*watcherEvent)

			if watcherEvent.Type == EventCreate && watcherEvent.IsDir && w.config.Recursive {
				w.watchNewDirectory(watcherEvent.Path)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.reportError(err)
		}
	}
}

// watchNewDirectory starts watching a directory created after Start and
// reports whatever was written into it before the watch was attached.
func (w *FSNotifyWatcher) watchNewDirectory(dir string) {
	w.mu.Lock()
	err := w.addPath(dir)
	w.mu.Unlock()
	if err != nil {
		w.logger.Warn("Failed to watch new directory", "path", dir, "error", err)
		return
	}

	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || path == dir {
			return nil
		}
		if w.filter.Ignored(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		w.emit(Event{
			Type:      EventCreate,
			Path:      path,
			Timestamp: time.Now(),
			IsDir:     d.IsDir(),
		})
		return nil
	})
}

// emit queues an event without blocking the fsnotify reader. A full queue
// drops the event and reports ErrEventOverflow.
func (w *FSNotifyWatcher) emit(event Event) {
	select {
	case w.eventChan <- event:
	case <-w.ctx.Done():
	default:
		w.logger.Warn("Event channel full, dropping event", "path", event.Path)
		w.reportError(fmt.Errorf("%w: dropped %s event for %s", ErrEventOverflow, event.Type, event.Path))
	}
}

func (w *FSNotifyWatcher) reportError(err error) {
	select {
	case w.errorChan <- err:
	case <-w.ctx.Done():
	default:
		w.logger.Warn("Error channel full, dropping error", "error", err)
	}
}

// convertEvent converts fsnotify.Event to watcher.Event
func (w *FSNotifyWatcher) convertEvent(event fsnotify.Event) *Event {
	var eventType EventType

	switch {
	case event.Has(fsnotify.Create):
		eventType = EventCreate
	case event.Has(fsnotify.Write):
		eventType = EventWrite
	case event.Has(fsnotify.Remove):
		eventType = EventRemove
	case event.Has(fsnotify.Rename):
		eventType = EventRename
	case event.Has(fsnotify.Chmod):
		eventType = EventChmod
	default:
		return nil
	}

	isDir := false
	if eventType == EventCreate {
		if info, err := os.Stat(event.Name); err == nil {
			isDir = info.IsDir()
		}
	}

	return &Event{
		Type:      eventType,
		Path:      event.Name,
		Timestamp: time.Now(),
		IsDir:     isDir,
	}
}
