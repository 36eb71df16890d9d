package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	internal "github.com/ZanzyTHEbar/track-folder-changes/tfc"
	"github.com/ZanzyTHEbar/track-folder-changes/tfc/config"
	"github.com/ZanzyTHEbar/track-folder-changes/tfc/filesystem/watcher"
	"github.com/ZanzyTHEbar/track-folder-changes/tfc/trees"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWatcher struct {
	events   chan watcher.Event
	errs     chan error
	startErr error
	onStart  func(paths []string)

	mu     sync.Mutex
	paths  []string
	closed bool
}

func newFakeWatcher() *fakeWatcher {
	return &fakeWatcher{
		events: make(chan watcher.Event, 64),
		errs:   make(chan error, 8),
	}
}

func (f *fakeWatcher) Start(ctx context.Context, paths []string) error {
	if f.startErr != nil {
		return f.startErr
	}
	if f.onStart != nil {
		f.onStart(paths)
	}
	f.mu.Lock()
	f.paths = append(f.paths, paths...)
	f.mu.Unlock()
	return nil
}

func (f *fakeWatcher) Events() <-chan watcher.Event { return f.events }
func (f *fakeWatcher) Errors() <-chan error         { return f.errs }
func (f *fakeWatcher) Add(paths ...string) error    { return nil }
func (f *fakeWatcher) Remove(paths ...string) error { return nil }

func (f *fakeWatcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeWatcher) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// factory hands out fake watchers and remembers them
type factory struct {
	mu       sync.Mutex
	made     []*fakeWatcher
	startErr error
	onStart  func(paths []string)
}

func (f *factory) new(watcher.WatcherConfig) (watcher.Watcher, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := newFakeWatcher()
	w.startErr = f.startErr
	w.onStart = f.onStart
	f.made = append(f.made, w)
	return w, nil
}

func (f *factory) last() *fakeWatcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.made[len(f.made)-1]
}

type memSettings struct {
	mu      sync.Mutex
	values  map[string]string
	saveErr error
}

func (m *memSettings) Load(key, def string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.values[key]; ok {
		return v
	}
	return def
}

func (m *memSettings) Save(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.values[key] = value
	return nil
}

type recordingInteractor struct {
	mu       sync.Mutex
	outputs  []string
	warnings []string
	errors   []error
	spinners []bool
}

func (r *recordingInteractor) Output(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs = append(r.outputs, message)
}

func (r *recordingInteractor) Warning(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, message)
}

func (r *recordingInteractor) Error(message string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, err)
}

func (r *recordingInteractor) StartSpinner(string) {}

func (r *recordingInteractor) StopSpinner(success bool, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spinners = append(r.spinners, success)
}

func (r *recordingInteractor) warningCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.warnings)
}

func (r *recordingInteractor) errorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errors)
}

type harness struct {
	tracker    *Tracker
	fs         afero.Fs
	watchers   *factory
	settings   *memSettings
	interactor *recordingInteractor
}

func newHarness(t *testing.T, cfg config.WatchConfig, dirs ...string) *harness {
	t.Helper()

	fs := afero.NewMemMapFs()
	for _, d := range dirs {
		require.NoError(t, fs.MkdirAll(d, 0o755))
	}

	h := &harness{
		fs:         fs,
		watchers:   &factory{},
		settings:   &memSettings{values: map[string]string{}},
		interactor: &recordingInteractor{},
	}
	h.tracker = New(cfg,
		WithFs(fs),
		WithSettings(h.settings),
		WithInteractor(h.interactor),
		WithWatcherFactory(h.watchers.new),
	)
	t.Cleanup(func() { h.tracker.Close() })
	return h
}

func (h *harness) waitForEntity(t *testing.T, path string, status trees.Status) {
	t.Helper()
	assert.Eventually(t, func() bool {
		e, ok := h.tracker.Tree().Lookup(path)
		return ok && e.Status == status
	}, 2*time.Second, 5*time.Millisecond, "%s should become %s", path, status)
}

func TestChangeRootFeedsTree(t *testing.T) {
	h := newHarness(t, config.WatchConfig{}, "/data")
	ctx := context.Background()

	root, err := h.tracker.ChangeRoot(ctx, "/data")
	require.NoError(t, err)
	assert.Equal(t, "/data", root.Path)
	assert.Equal(t, "/data", h.tracker.Root())
	assert.Equal(t, "/data", h.settings.Load(internal.LastFolderKey, ""))

	w := h.watchers.last()
	assert.Equal(t, []string{"/data"}, w.paths)

	w.events <- watcher.Event{Type: watcher.EventCreate, Path: "/data/src/main.go"}
	w.events <- watcher.Event{Type: watcher.EventWrite, Path: "/data/README.md"}
	w.events <- watcher.Event{Type: watcher.EventRemove, Path: "/data/old.txt"}
	w.events <- watcher.Event{Type: watcher.EventChmod, Path: "/data/run.sh"}

	h.waitForEntity(t, "/data/src/main.go", trees.StatusCreated)
	h.waitForEntity(t, "/data/src", trees.StatusChanged)
	h.waitForEntity(t, "/data/README.md", trees.StatusChanged)
	h.waitForEntity(t, "/data/old.txt", trees.StatusDeleted)
	h.waitForEntity(t, "/data/run.sh", trees.StatusChanged)
}

func TestRenameMapping(t *testing.T) {
	h := newHarness(t, config.WatchConfig{}, "/data")
	_, err := h.tracker.ChangeRoot(context.Background(), "/data")
	require.NoError(t, err)
	w := h.watchers.last()

	w.events <- watcher.Event{Type: watcher.EventRename, Path: "/data/new.txt", OldPath: "/data/old.txt"}
	h.waitForEntity(t, "/data/old.txt", trees.StatusDeleted)
	h.waitForEntity(t, "/data/new.txt", trees.StatusCreated)

	w.events <- watcher.Event{Type: watcher.EventRename, Path: "/data/moved-away.txt"}
	h.waitForEntity(t, "/data/moved-away.txt", trees.StatusDeleted)
}

func TestToTreeEvent(t *testing.T) {
	now := time.Now()
	tests := []struct {
		in   watcher.Event
		want trees.Event
	}{
		{watcher.Event{Type: watcher.EventCreate, Path: "/a", Timestamp: now}, trees.Event{Type: trees.Created, Path: "/a", Timestamp: now}},
		{watcher.Event{Type: watcher.EventWrite, Path: "/a"}, trees.Event{Type: trees.Changed, Path: "/a"}},
		{watcher.Event{Type: watcher.EventChmod, Path: "/a"}, trees.Event{Type: trees.Changed, Path: "/a"}},
		{watcher.Event{Type: watcher.EventRemove, Path: "/a"}, trees.Event{Type: trees.Deleted, Path: "/a"}},
		{watcher.Event{Type: watcher.EventRename, Path: "/a"}, trees.Event{Type: trees.Deleted, Path: "/a"}},
		{watcher.Event{Type: watcher.EventRename, Path: "/b", OldPath: "/a"}, trees.Event{Type: trees.Renamed, Path: "/b", OldPath: "/a"}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s %s", tt.in.Type, tt.in.OldPath), func(t *testing.T) {
			assert.Equal(t, tt.want, toTreeEvent(tt.in))
		})
	}
}

func TestChangeRootInvalidPathKeepsState(t *testing.T) {
	h := newHarness(t, config.WatchConfig{}, "/data")
	ctx := context.Background()

	_, err := h.tracker.ChangeRoot(ctx, "/data")
	require.NoError(t, err)
	first := h.watchers.last()
	first.events <- watcher.Event{Type: watcher.EventCreate, Path: "/data/a.txt"}
	h.waitForEntity(t, "/data/a.txt", trees.StatusCreated)

	_, err = h.tracker.ChangeRoot(ctx, "/missing")
	assert.ErrorIs(t, err, trees.ErrInvalidPath)
	assert.Equal(t, "/data", h.tracker.Root())
	assert.False(t, first.isClosed(), "current watcher keeps running")
	assert.Len(t, h.watchers.made, 1, "no watcher was created for an invalid root")

	_, ok := h.tracker.Tree().Lookup("/data/a.txt")
	assert.True(t, ok)
}

func TestChangeRootWatchSetupFailureKeepsState(t *testing.T) {
	h := newHarness(t, config.WatchConfig{}, "/data", "/locked")
	ctx := context.Background()

	_, err := h.tracker.ChangeRoot(ctx, "/data")
	require.NoError(t, err)
	first := h.watchers.last()

	h.watchers.startErr = fmt.Errorf("%w: permission denied", watcher.ErrWatchSetupFailure)
	ok := h.tracker.TryChangeRoot(ctx, "/locked")
	assert.False(t, ok)

	assert.Equal(t, "/data", h.tracker.Root())
	assert.False(t, first.isClosed())
	assert.True(t, h.watchers.last().isClosed(), "failed watcher is released")
	assert.Equal(t, "/data", h.settings.Load(internal.LastFolderKey, ""))
	require.Equal(t, 1, h.interactor.errorCount())
	assert.ErrorIs(t, h.interactor.errors[0], watcher.ErrWatchSetupFailure)
	assert.Equal(t, []bool{false}, h.interactor.spinners)
}

func TestChangeRootVanishedRootKeepsWatching(t *testing.T) {
	h := newHarness(t, config.WatchConfig{}, "/data", "/two")
	ctx := context.Background()

	_, err := h.tracker.ChangeRoot(ctx, "/data")
	require.NoError(t, err)
	first := h.watchers.last()

	// the new root disappears after the watcher attached but before the rebuild
	h.watchers.onStart = func(paths []string) {
		for _, p := range paths {
			require.NoError(t, h.fs.RemoveAll(p))
		}
	}
	_, err = h.tracker.ChangeRoot(ctx, "/two")
	require.ErrorIs(t, err, trees.ErrInvalidPath)

	assert.Equal(t, "/data", h.tracker.Root())
	assert.False(t, first.isClosed())
	assert.True(t, h.watchers.last().isClosed(), "failed watcher is released")
	assert.Equal(t, "/data", h.settings.Load(internal.LastFolderKey, ""))

	first.events <- watcher.Event{Type: watcher.EventCreate, Path: "/data/after.txt"}
	h.waitForEntity(t, "/data/after.txt", trees.StatusCreated)
}

func TestChangeRootSwitchesWatcher(t *testing.T) {
	h := newHarness(t, config.WatchConfig{}, "/one", "/two")
	ctx := context.Background()

	require.True(t, h.tracker.TryChangeRoot(ctx, "/one"))
	first := h.watchers.last()
	first.events <- watcher.Event{Type: watcher.EventCreate, Path: "/one/a"}
	h.waitForEntity(t, "/one/a", trees.StatusCreated)

	require.True(t, h.tracker.TryChangeRoot(ctx, "/two"))
	assert.True(t, first.isClosed())
	assert.Equal(t, "/two", h.tracker.Root())
	assert.Equal(t, 1, h.tracker.Tree().Len())
	assert.Equal(t, "/two", h.settings.Load(internal.LastFolderKey, ""))
	assert.Equal(t, []bool{true, true}, h.interactor.spinners)
}

func TestRefresh(t *testing.T) {
	h := newHarness(t, config.WatchConfig{}, "/data")
	ctx := context.Background()

	_, err := h.tracker.Refresh(ctx)
	assert.ErrorIs(t, err, trees.ErrNotInitialized)

	_, err = h.tracker.ChangeRoot(ctx, "/data")
	require.NoError(t, err)
	h.watchers.last().events <- watcher.Event{Type: watcher.EventCreate, Path: "/data/a"}
	h.waitForEntity(t, "/data/a", trees.StatusCreated)

	root, err := h.tracker.Refresh(ctx)
	require.NoError(t, err)
	assert.Empty(t, root.Children)
	assert.Equal(t, 1, h.tracker.Tree().Len())
	assert.Len(t, h.watchers.made, 2)
}

func TestRestore(t *testing.T) {
	ctx := context.Background()

	t.Run("configured root wins", func(t *testing.T) {
		h := newHarness(t, config.WatchConfig{Root: "/configured"}, "/configured", "/stored")
		h.settings.values[internal.LastFolderKey] = "/stored"

		root, err := h.tracker.Restore(ctx)
		require.NoError(t, err)
		assert.Equal(t, "/configured", root.Path)
	})

	t.Run("last folder", func(t *testing.T) {
		h := newHarness(t, config.WatchConfig{}, "/stored")
		h.settings.values[internal.LastFolderKey] = "/stored"

		root, err := h.tracker.Restore(ctx)
		require.NoError(t, err)
		assert.Equal(t, "/stored", root.Path)
	})

	t.Run("missing last folder falls back", func(t *testing.T) {
		fallback, err := trees.NormalizeRoot(internal.DefaultRoot())
		require.NoError(t, err)

		h := newHarness(t, config.WatchConfig{}, fallback)
		h.settings.values[internal.LastFolderKey] = "/gone"

		root, err := h.tracker.Restore(ctx)
		require.NoError(t, err)
		assert.Equal(t, fallback, root.Path)
		assert.Equal(t, 1, h.interactor.warningCount())
	})
}

func TestSettingsFailureIsOnlyAWarning(t *testing.T) {
	h := newHarness(t, config.WatchConfig{}, "/data")
	h.settings.saveErr = errors.New("read-only")

	_, err := h.tracker.ChangeRoot(context.Background(), "/data")
	require.NoError(t, err)
	assert.Equal(t, 1, h.interactor.warningCount())
}

func TestOverflowHandling(t *testing.T) {
	t.Run("auto refresh clears the tree", func(t *testing.T) {
		h := newHarness(t, config.WatchConfig{AutoRefreshOnOverflow: true}, "/data")
		_, err := h.tracker.ChangeRoot(context.Background(), "/data")
		require.NoError(t, err)
		w := h.watchers.last()

		w.events <- watcher.Event{Type: watcher.EventCreate, Path: "/data/a"}
		h.waitForEntity(t, "/data/a", trees.StatusCreated)

		w.errs <- watcher.ErrEventOverflow
		assert.Eventually(t, func() bool { return h.tracker.Tree().Len() == 1 }, 2*time.Second, 5*time.Millisecond)
		assert.Equal(t, 1, h.interactor.warningCount())
	})

	t.Run("without auto refresh the tree is kept", func(t *testing.T) {
		h := newHarness(t, config.WatchConfig{}, "/data")
		_, err := h.tracker.ChangeRoot(context.Background(), "/data")
		require.NoError(t, err)
		w := h.watchers.last()

		w.events <- watcher.Event{Type: watcher.EventCreate, Path: "/data/a"}
		h.waitForEntity(t, "/data/a", trees.StatusCreated)

		w.errs <- watcher.ErrEventOverflow
		assert.Eventually(t, func() bool { return h.interactor.warningCount() == 1 }, 2*time.Second, 5*time.Millisecond)
		assert.Equal(t, 2, h.tracker.Tree().Len())
	})

	t.Run("other errors are reported", func(t *testing.T) {
		h := newHarness(t, config.WatchConfig{}, "/data")
		_, err := h.tracker.ChangeRoot(context.Background(), "/data")
		require.NoError(t, err)

		h.watchers.last().errs <- errors.New("inotify hiccup")
		assert.Eventually(t, func() bool { return h.interactor.errorCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	})
}

func TestObserverSeesTrackedChanges(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/data", 0o755))

	var (
		mu   sync.Mutex
		seen []trees.Operation
	)
	watchers := &factory{}
	tr := New(config.WatchConfig{},
		WithFs(fs),
		WithWatcherFactory(watchers.new),
		WithObserver(trees.ObserverFunc(func(n trees.Notification) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, n.Op)
		})),
	)

	_, err := tr.ChangeRoot(context.Background(), "/data")
	require.NoError(t, err)
	watchers.last().events <- watcher.Event{Type: watcher.EventCreate, Path: "/data/a"}

	assert.Eventually(t, func() bool {
		e, ok := tr.Tree().Lookup("/data/a")
		return ok && e.Status == trees.StatusCreated
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, tr.Close())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []trees.Operation{trees.OpInitialize, trees.OpApply}, seen)
}
