package watcher

import (
	"fmt"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// Filter decides which paths are dropped before they become events
type Filter struct {
	matcher *ignore.GitIgnore
	roots   []string
}

// NewFilter compiles the ignore patterns of config. A nil filter ignores nothing.
func NewFilter(config WatcherConfig) (*Filter, error) {
	if len(config.Ignore) == 0 && config.IgnoreFile == "" {
		return nil, nil
	}

	var (
		matcher *ignore.GitIgnore
		err     error
	)
	if config.IgnoreFile != "" {
		matcher, err = ignore.CompileIgnoreFileAndLines(config.IgnoreFile, config.Ignore...)
		if err != nil {
			return nil, fmt.Errorf("failed to compile ignore file %s: %w", config.IgnoreFile, err)
		}
	} else {
		matcher = ignore.CompileIgnoreLines(config.Ignore...)
	}
	return &Filter{matcher: matcher}, nil
}

// AddRoot registers a watched root that patterns are relative to
func (f *Filter) AddRoot(root string) {
	if f == nil {
		return
	}
	f.roots = append(f.roots, filepath.Clean(root))
}

// Ignored reports whether path matches an ignore pattern
func (f *Filter) Ignored(path string) bool {
	if f == nil || f.matcher == nil {
		return false
	}

	for _, root := range f.roots {
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}
		return f.matcher.MatchesPath(filepath.ToSlash(rel))
	}
	return false
}
