// Package tracker keeps a ChangeTree fed from a filesystem watcher and owns
// the lifecycle around it: switching roots, refreshing, restoring the last
// folder and recovering from lost events.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	internal "github.com/ZanzyTHEbar/track-folder-changes/tfc"
	"github.com/ZanzyTHEbar/track-folder-changes/tfc/config"
	"github.com/ZanzyTHEbar/track-folder-changes/tfc/filesystem/common"
	"github.com/ZanzyTHEbar/track-folder-changes/tfc/filesystem/watcher"
	"github.com/ZanzyTHEbar/track-folder-changes/tfc/ports"
	"github.com/ZanzyTHEbar/track-folder-changes/tfc/trees"

	"github.com/sourcegraph/conc"
	"github.com/spf13/afero"
)

// SettingsStore persists small pieces of user state between runs
type SettingsStore interface {
	Load(key, def string) string
	Save(key, value string) error
}

// WatcherFactory creates an unstarted watcher
type WatcherFactory func(config watcher.WatcherConfig) (watcher.Watcher, error)

func defaultWatcherFactory(config watcher.WatcherConfig) (watcher.Watcher, error) {
	return watcher.NewFSNotifyWatcher(config)
}

// Tracker drives a ChangeTree from a watcher attached to its root
type Tracker struct {
	mu         sync.Mutex
	tree       *trees.ChangeTree
	fs         afero.Fs
	config     config.WatchConfig
	settings   SettingsStore
	interactor ports.Interactor
	newWatcher WatcherFactory
	observers  []trees.Observer
	errs       *common.ErrorUtils
	logger     *slog.Logger

	watcher     watcher.Watcher
	cancelWatch context.CancelFunc
	stopPump    context.CancelFunc
	pumps       *conc.WaitGroup
}

// Option customizes a Tracker
type Option func(*Tracker)

// WithFs sets the filesystem roots are validated against
func WithFs(fs afero.Fs) Option {
	return func(t *Tracker) {
		t.fs = fs
	}
}

// WithSettings sets where the last watched root is stored
func WithSettings(s SettingsStore) Option {
	return func(t *Tracker) {
		t.settings = s
	}
}

// WithInteractor sets who is told about progress and failures
func WithInteractor(i ports.Interactor) Option {
	return func(t *Tracker) {
		t.interactor = i
	}
}

// WithWatcherFactory replaces how watchers are created
func WithWatcherFactory(f WatcherFactory) Option {
	return func(t *Tracker) {
		t.newWatcher = f
	}
}

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// WithObserver subscribes o to the tree's notifications
func WithObserver(o trees.Observer) Option {
	return func(t *Tracker) {
		t.observers = append(t.observers, o)
	}
}

// New creates a Tracker that has no root yet
func New(cfg config.WatchConfig, opts ...Option) *Tracker {
	t := &Tracker{
		config:     cfg,
		fs:         afero.NewOsFs(),
		interactor: ports.NopInteractor{},
		newWatcher: defaultWatcherFactory,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}

	treeOpts := []trees.TreeOption{trees.WithFs(t.fs), trees.WithLogger(t.logger)}
	for _, o := range t.observers {
		treeOpts = append(treeOpts, trees.WithObserver(o))
	}
	t.tree = trees.NewChangeTree(treeOpts...)
	t.errs = common.NewErrorUtils(t.logger)
	return t
}

// Tree returns the change tree the tracker feeds
func (t *Tracker) Tree() *trees.ChangeTree {
	return t.tree
}

// Subscribe registers an observer of the tree
func (t *Tracker) Subscribe(o trees.Observer) {
	t.tree.Subscribe(o)
}

// Root returns the watched root, or "" before the first successful change
func (t *Tracker) Root() string {
	return t.tree.RootPath()
}

// ChangeRoot starts watching path and rebuilds the tree around it. An
// invalid path, a watcher that cannot attach or a root that vanishes before
// the rebuild leaves the current root, tree and watcher untouched.
func (t *Tracker) ChangeRoot(ctx context.Context, path string) (trees.Entity, error) {
	root, err := trees.ResolveRoot(t.fs, path)
	if err != nil {
		return trees.Entity{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	watchCtx, cancelWatch := context.WithCancel(context.Background())
	w, err := t.startWatcher(watchCtx, root)
	if err != nil {
		cancelWatch()
		return trees.Entity{}, err
	}
	if err := ctx.Err(); err != nil {
		cancelWatch()
		w.Close()
		return trees.Entity{}, err
	}

	// the old watcher keeps running while its pump is paused, so a failed
	// rebuild can hand it back its events
	t.pausePumpLocked()

	entity, err := t.tree.Initialize(root)
	if err != nil {
		cancelWatch()
		w.Close()
		if t.watcher != nil {
			t.startPumpLocked()
		}
		return trees.Entity{}, err
	}

	t.releaseWatcherLocked()
	t.watcher = w
	t.cancelWatch = cancelWatch
	t.startPumpLocked()

	if t.settings != nil {
		if err := t.settings.Save(internal.LastFolderKey, root); err != nil {
			t.interactor.Warning(fmt.Sprintf("Could not remember %s: %v", root, err))
		}
	}

	t.logger.Info("Watching folder", "root", root)
	return entity, nil
}

// TryChangeRoot is ChangeRoot for interactive callers: failures are reported
// through the interactor and only the outcome is returned.
func (t *Tracker) TryChangeRoot(ctx context.Context, path string) bool {
	t.interactor.StartSpinner(fmt.Sprintf("Watching %s", path))

	root, err := t.ChangeRoot(ctx, path)
	if err != nil {
		t.interactor.StopSpinner(false, "Could not watch folder")
		t.interactor.Error(fmt.Sprintf("Failed to watch %s", path), err)
		return false
	}

	t.interactor.StopSpinner(true, fmt.Sprintf("Watching %s", root.Path))
	return true
}

// Refresh clears every mark by re-watching the current root
func (t *Tracker) Refresh(ctx context.Context) (trees.Entity, error) {
	root := t.Root()
	if root == "" {
		return trees.Entity{}, trees.ErrNotInitialized
	}
	return t.ChangeRoot(ctx, root)
}

// Restore watches the configured root, else the last watched folder, else
// the default root. A stored folder that no longer works falls back to the
// default root.
func (t *Tracker) Restore(ctx context.Context) (trees.Entity, error) {
	fallback := internal.DefaultRoot()

	candidate := t.config.Root
	if candidate == "" && t.settings != nil {
		candidate = t.settings.Load(internal.LastFolderKey, fallback)
	}
	if candidate == "" {
		candidate = fallback
	}

	entity, err := t.ChangeRoot(ctx, candidate)
	if err == nil || candidate == fallback {
		return entity, err
	}

	t.interactor.Warning(fmt.Sprintf("Cannot watch %s, falling back to %s", candidate, fallback))
	return t.ChangeRoot(ctx, fallback)
}

// Close stops the watcher and the tree's notifications
func (t *Tracker) Close() error {
	t.mu.Lock()
	t.pausePumpLocked()
	t.releaseWatcherLocked()
	t.mu.Unlock()

	return t.tree.Close()
}

func (t *Tracker) startWatcher(ctx context.Context, root string) (watcher.Watcher, error) {
	w, err := t.newWatcher(t.config.WatcherConfig())
	if err != nil {
		return nil, t.errs.LogAndWrapError(err, slog.LevelWarn, "create watcher for %s", root)
	}
	if err := w.Start(ctx, []string{root}); err != nil {
		w.Close()
		return nil, t.errs.LogAndWrapError(err, slog.LevelWarn, "watch %s", root)
	}
	return w, nil
}

func (t *Tracker) startPumpLocked() {
	w := t.watcher
	pumpCtx, stop := context.WithCancel(context.Background())
	t.stopPump = stop
	t.pumps = conc.NewWaitGroup()
	t.pumps.Go(func() { t.pump(pumpCtx, w) })
}

// pausePumpLocked waits for the pump to return. The watcher stays attached
// and buffers whatever arrives meanwhile.
func (t *Tracker) pausePumpLocked() {
	if t.stopPump == nil {
		return
	}

	t.stopPump()
	t.pumps.Wait()

	t.stopPump = nil
	t.pumps = nil
}

func (t *Tracker) releaseWatcherLocked() {
	if t.watcher == nil {
		return
	}

	t.cancelWatch()
	if err := t.watcher.Close(); err != nil {
		t.logger.Warn("Failed to close watcher", "error", err)
	}

	t.watcher = nil
	t.cancelWatch = nil
}

// pump is the single consumer of a watcher. It applies events in arrival
// order until the watcher closes or ctx is cancelled.
func (t *Tracker) pump(ctx context.Context, w watcher.Watcher) {
	events, errs := w.Events(), w.Errors()
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				return
			}
			if _, err := t.tree.Apply(toTreeEvent(ev)); err != nil {
				t.logger.Debug("Event not applied", "path", ev.Path, "type", ev.Type, "error", err)
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			t.handleWatchError(err)
		}
	}
}

func (t *Tracker) handleWatchError(err error) {
	if !watcher.IsOverflow(err) {
		t.interactor.Error("Watcher error", err)
		return
	}

	if !t.config.AutoRefreshOnOverflow {
		t.interactor.Warning("Some changes were lost; refresh to start over")
		return
	}

	t.interactor.Warning("Some changes were lost; clearing the tree")
	if _, err := t.tree.Reset(); err != nil {
		t.interactor.Error("Failed to clear the tree", err)
	}
}

// toTreeEvent maps a raw watcher event onto the change tree's vocabulary.
// A rename without its target is the source disappearing.
func toTreeEvent(ev watcher.Event) trees.Event {
	out := trees.Event{Path: ev.Path, Timestamp: ev.Timestamp}

	switch ev.Type {
	case watcher.EventCreate:
		out.Type = trees.Created
	case watcher.EventWrite, watcher.EventChmod:
		out.Type = trees.Changed
	case watcher.EventRemove:
		out.Type = trees.Deleted
	case watcher.EventRename:
		if ev.OldPath == "" {
			out.Type = trees.Deleted
		} else {
			out.Type = trees.Renamed
			out.OldPath = ev.OldPath
		}
	}
	return out
}
