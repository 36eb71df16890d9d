package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

// Settings is the small persisted key/value store for user state such as
// the last watched folder. Keys are case-insensitive.
type Settings struct {
	mu   sync.Mutex
	v    *viper.Viper
	file string
}

// NewSettings opens the settings stored in file. A missing file is an empty
// store; it is created on the first Save.
func NewSettings(file string) (*Settings, error) {
	v := viper.New()
	v.SetConfigFile(file)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read settings %s: %w", file, err)
		}
	}

	return &Settings{v: v, file: file}, nil
}

// Load returns the stored value for key, or def when nothing is stored
func (s *Settings) Load(key, def string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.v.IsSet(key) {
		return def
	}
	return s.v.GetString(key)
}

// Save stores value under key and writes the settings file
func (s *Settings) Save(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.v.Set(key, value)

	if err := os.MkdirAll(filepath.Dir(s.file), 0o755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	if err := s.v.WriteConfigAs(s.file); err != nil {
		return fmt.Errorf("failed to write settings %s: %w", s.file, err)
	}
	return nil
}

// File returns the path of the settings file
func (s *Settings) File() string {
	return s.file
}
