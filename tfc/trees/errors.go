package trees

import "errors"

var (
	// ErrInvalidPath is returned when a path is empty, malformed, outside the
	// watched root, or (for a root) not an existing accessible directory.
	ErrInvalidPath = errors.New("invalid path")

	// ErrDuplicateKey signals an attempt to index a path twice. Callers always
	// Lookup before Insert, so seeing it means a bug in the caller.
	ErrDuplicateKey = errors.New("duplicate path key")

	// ErrNotInitialized is returned by operations on a tree without a root.
	ErrNotInitialized = errors.New("change tree not initialized")
)
