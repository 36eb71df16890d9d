package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	internal "github.com/ZanzyTHEbar/track-folder-changes/tfc"
	"github.com/ZanzyTHEbar/track-folder-changes/tfc/filesystem/watcher"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Watch     WatchConfig     `mapstructure:"watch"`
	Snapshots SnapshotsConfig `mapstructure:"snapshots"`
	Log       LogConfig       `mapstructure:"log"`
}

// WatchConfig stores the watched root and how it is watched.
type WatchConfig struct {
	// Root overrides the last folder stored in the settings file
	Root                  string   `mapstructure:"root"`
	Ignore                []string `mapstructure:"ignore"`
	IgnoreFile            string   `mapstructure:"ignoreFile"`
	QueueCapacity         int      `mapstructure:"queueCapacity"`
	Recursive             bool     `mapstructure:"recursive"`
	AutoRefreshOnOverflow bool     `mapstructure:"autoRefreshOnOverflow"`
}

// SnapshotsConfig stores the snapshot database connection.
type SnapshotsConfig struct {
	DSN string `mapstructure:"dsn"`
}

// LogConfig stores logging options.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// WatcherConfig converts the watch section to the watcher's configuration
func (c WatchConfig) WatcherConfig() watcher.WatcherConfig {
	return watcher.WatcherConfig{
		QueueCapacity: c.QueueCapacity,
		Recursive:     c.Recursive,
		Ignore:        c.Ignore,
		IgnoreFile:    c.IgnoreFile,
	}
}

// SlogLevel parses the configured level, falling back to info
func (c LogConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// LoadConfig reads configuration from file or environment variables.
// An explicit configPath must exist; without one the default locations are
// searched and a missing file just means defaults.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		v.AddConfigPath(internal.DefaultConfigPath)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	defaults := watcher.DefaultConfig()
	v.SetDefault("watch.root", "")
	v.SetDefault("watch.ignore", []string{})
	v.SetDefault("watch.ignoreFile", "")
	v.SetDefault("watch.queueCapacity", defaults.QueueCapacity)
	v.SetDefault("watch.recursive", defaults.Recursive)
	v.SetDefault("watch.autoRefreshOnOverflow", true)
	v.SetDefault("snapshots.dsn", internal.DefaultSnapshotDSN)
	v.SetDefault("log.level", "info")

	// TFC_WATCH_ROOT overrides watch.root and so on
	v.SetEnvPrefix(strings.ToUpper(internal.DefaultAppName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	return &cfg, nil
}
