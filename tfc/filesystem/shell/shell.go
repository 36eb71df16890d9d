// Package shell hands entities of the change tree to the desktop: opening
// files and folders and producing the clipboard form of a path.
package shell

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/ZanzyTHEbar/track-folder-changes/tfc/filesystem/common"

	"github.com/skratchdot/open-golang/open"
	"github.com/spf13/afero"
)

// Shell opens paths with the platform's default handler
type Shell struct {
	validate *common.ValidationUtils
	errs     *common.ErrorUtils
	start    func(input string) error
	logger   *slog.Logger
}

// Option customizes a Shell
type Option func(*Shell)

// WithStarter replaces the function that launches the default handler
func WithStarter(start func(input string) error) Option {
	return func(s *Shell) {
		s.start = start
	}
}

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Shell) {
		s.logger = logger
	}
}

// New creates a Shell checking paths against fs. A nil fs means the
// operating system filesystem.
func New(fs afero.Fs, opts ...Option) *Shell {
	s := &Shell{
		validate: common.NewValidationUtils(fs),
		start:    open.Start,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.errs = common.NewErrorUtils(s.logger)
	return s
}

// Open launches the default handler for an existing file or folder
func (s *Shell) Open(path string) error {
	if err := s.validate.ValidatePath(path); err != nil {
		return err
	}
	if err := s.validate.ValidateExists(path); err != nil {
		return err
	}
	return s.launch(path)
}

// OpenItem opens a folder itself, or the folder containing anything else.
// Deleted entries still resolve to their containing folder.
func (s *Shell) OpenItem(path string) error {
	if err := s.validate.ValidatePath(path); err != nil {
		return err
	}
	if s.validate.IsDirectory(path) {
		return s.launch(path)
	}
	return s.openNearestFolder(filepath.Dir(path))
}

// OpenLocation opens the folder that holds path. When that folder is gone
// too, the nearest ancestor that still exists is opened instead.
func (s *Shell) OpenLocation(path string) error {
	if err := s.validate.ValidatePath(path); err != nil {
		return err
	}
	return s.openNearestFolder(filepath.Dir(path))
}

// QuotedPath is the clipboard form of a path
func QuotedPath(path string) string {
	return `"` + path + `"`
}

func (s *Shell) openNearestFolder(dir string) error {
	for {
		if s.validate.IsDirectory(dir) {
			return s.launch(dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return fmt.Errorf("%w: no existing folder above %s", common.ErrPathNotExist, dir)
		}
		dir = parent
	}
}

func (s *Shell) launch(path string) error {
	s.logger.Debug("Opening path", "path", path)
	return s.errs.HandleOperationError(s.start(path), "open", path, true)
}
