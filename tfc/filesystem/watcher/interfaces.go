package watcher

import (
	"context"
	"errors"
	"time"

	"github.com/fsnotify/fsnotify"
)

var (
	// ErrWatchSetupFailure is returned when the watcher cannot attach to a
	// path, e.g. permission denied or the path vanished during setup.
	ErrWatchSetupFailure = errors.New("watch setup failed")

	// ErrEventOverflow is reported on the error channel when events were
	// dropped because the event queue was full.
	ErrEventOverflow = errors.New("event queue overflow")
)

// IsOverflow reports whether err signals lost events, either from the OS
// notification buffer or from the watcher's own queue.
func IsOverflow(err error) bool {
	return errors.Is(err, ErrEventOverflow) || errors.Is(err, fsnotify.ErrEventOverflow)
}

// EventType represents the type of file system event
type EventType int

const (
	// EventCreate represents file/directory creation
	EventCreate EventType = iota
	// EventWrite represents file modification
	EventWrite
	// EventRemove represents file/directory removal
	EventRemove
	// EventRename represents a rename. When OldPath is empty only the source
	// side is known and Path holds the old name; the new name arrives as a
	// separate EventCreate.
	EventRename
	// EventChmod represents attribute or permission changes
	EventChmod
)

func (t EventType) String() string {
	switch t {
	case EventCreate:
		return "create"
	case EventWrite:
		return "write"
	case EventRemove:
		return "remove"
	case EventRename:
		return "rename"
	case EventChmod:
		return "chmod"
	default:
		return "unknown"
	}
}

// Event represents a file system event
type Event struct {
	Type      EventType
	Path      string
	OldPath   string // For rename events
	Timestamp time.Time
	IsDir     bool
}

// Watcher defines the interface for file system watching
type Watcher interface {
	// Start begins watching the specified paths and their subdirectories
	Start(ctx context.Context, paths []string) error

	// Events returns a channel of file system events
	Events() <-chan Event

	// Errors returns a channel of errors encountered during watching
	Errors() <-chan error

	// Close stops watching and cleans up resources
	Close() error

	// Add adds paths to watch
	Add(paths ...string) error

	// Remove removes paths from watching
	Remove(paths ...string) error
}

// WatcherConfig holds configuration for the watcher
type WatcherConfig struct {
	// QueueCapacity is the capacity of the event channel
	QueueCapacity int

	// Recursive adds every subdirectory, including ones created later
	Recursive bool

	// Ignore holds gitignore style patterns, relative to the watched root
	Ignore []string

	// IgnoreFile optionally names a gitignore style file with more patterns
	IgnoreFile string
}

// DefaultConfig returns a default watcher configuration
func DefaultConfig() WatcherConfig {
	return WatcherConfig{
		QueueCapacity: 4096,
		Recursive:     true,
	}
}
