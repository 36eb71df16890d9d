package internal

import (
	"log"
	"os"
	"path/filepath"
	"runtime"

	"github.com/rs/zerolog"
)

var (
	// DefaultConfigPath is the default path to the config directory
	DefaultAppName          = "tfc"
	DefaultAppCMDShortCut   = "tfc"
	DefaultConfigPath       = filepath.Join(getHomeDir(), ".config", DefaultAppName)
	DefaultGlobalConfigFile = filepath.Join(DefaultConfigPath, "config.yaml")
	DefaultSettingsFile     = filepath.Join(DefaultConfigPath, "settings.yaml")
	DefaultSnapshotDBPath   = filepath.Join(DefaultConfigPath, "snapshots.db")

	// Default snapshot database settings
	DefaultSnapshotDSN = "file:" + DefaultSnapshotDBPath

	// LastFolderKey is the settings key holding the last watched root
	LastFolderKey = "LastFolder"
)

func getHomeDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		cwd, cwdErr := os.Getwd()
		if cwdErr != nil {
			log.Printf("Unable to get home or working directory, using /tmp: %v", err)
			return "/tmp"
		}
		log.Printf("Unable to get home directory, using current working directory: %v", err)
		return cwd
	}
	return homeDir
}

// DefaultRoot returns the folder watched when no usable last folder is stored:
// the system drive on Windows, the home directory elsewhere.
func DefaultRoot() string {
	if runtime.GOOS == "windows" {
		if drive := os.Getenv("SystemDrive"); drive != "" {
			return drive
		}
		return `C:\`
	}
	return getHomeDir()
}

// GetLogger returns a properly configured zerolog logger instance
func GetLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// GetConsoleLogger returns a human readable zerolog logger used for the change feed
func GetConsoleLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}).With().Timestamp().Logger()
}
