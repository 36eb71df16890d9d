package common

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/afero"
)

// Common error types used across filesystem packages
var (
	ErrPathEmpty    = errors.New("path cannot be empty")
	ErrPathTooLong  = errors.New("path too long (max 4096 characters)")
	ErrPathInvalid  = errors.New("path contains invalid characters")
	ErrPathNotExist = errors.New("path does not exist")
	ErrNotDirectory = errors.New("path is not a directory")
)

// ValidationUtils provides common validation utilities used across packages
type ValidationUtils struct {
	fs afero.Fs
}

// NewValidationUtils creates a new ValidationUtils instance backed by fs.
// A nil fs means the operating system filesystem.
func NewValidationUtils(fs afero.Fs) *ValidationUtils {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &ValidationUtils{fs: fs}
}

// ValidateContextCancellation checks if context is cancelled and returns appropriate error
func (vu *ValidationUtils) ValidateContextCancellation(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// ValidatePath checks that path is non-empty, not too long and free of NUL bytes
func (vu *ValidationUtils) ValidatePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return ErrPathEmpty
	}
	if len(path) > 4096 {
		return ErrPathTooLong
	}
	if strings.Contains(path, "\x00") {
		return ErrPathInvalid
	}
	return nil
}

// ValidateExists validates that path exists
func (vu *ValidationUtils) ValidateExists(path string) error {
	if _, err := vu.fs.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrPathNotExist, path)
		}
		return fmt.Errorf("failed to access %s: %w", path, err)
	}
	return nil
}

// ValidateDirectoryExists validates that a directory exists
func (vu *ValidationUtils) ValidateDirectoryExists(path string) error {
	info, err := vu.fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrPathNotExist, path)
		}
		return fmt.Errorf("failed to access directory %s: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrNotDirectory, path)
	}
	return nil
}

// IsDirectory reports whether path names an existing directory
func (vu *ValidationUtils) IsDirectory(path string) bool {
	ok, err := afero.IsDir(vu.fs, path)
	return err == nil && ok
}

// ErrorUtils provides common error handling utilities
type ErrorUtils struct {
	logger *slog.Logger
}

// NewErrorUtils creates a new ErrorUtils instance. A nil logger means slog.Default().
func NewErrorUtils(logger *slog.Logger) *ErrorUtils {
	if logger == nil {
		logger = slog.Default()
	}
	return &ErrorUtils{logger: logger}
}

// WrapError wraps an error with additional context
func (eu *ErrorUtils) WrapError(err error, message string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(message, args...), err)
}

// LogAndWrapError logs an error and wraps it with context
func (eu *ErrorUtils) LogAndWrapError(err error, level slog.Level, message string, args ...interface{}) error {
	if err == nil {
		return nil
	}

	msg := fmt.Sprintf(message, args...)
	eu.logger.Log(context.Background(), level, msg, "error", err)

	return fmt.Errorf("%s: %w", msg, err)
}

// HandleOperationError provides common error handling for file operations
func (eu *ErrorUtils) HandleOperationError(err error, operation, path string, logError bool) error {
	if err == nil {
		return nil
	}

	if logError {
		eu.logger.Error("Operation failed",
			"operation", operation,
			"path", path,
			"error", err)
	}

	return eu.WrapError(err, "failed to %s %s", operation, path)
}
