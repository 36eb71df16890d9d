package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	internal "github.com/ZanzyTHEbar/track-folder-changes/tfc"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// ConfigTestSuite tests the config package functionality
type ConfigTestSuite struct {
	suite.Suite
	tempDir string
	origDir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) SetupTest() {
	var err error
	suite.origDir, err = os.Getwd()
	require.NoError(suite.T(), err)

	suite.tempDir = suite.T().TempDir()
	require.NoError(suite.T(), os.Chdir(suite.tempDir))
}

func (suite *ConfigTestSuite) TearDownTest() {
	if suite.origDir != "" {
		os.Chdir(suite.origDir)
	}
}

func (suite *ConfigTestSuite) TestLoadConfigWithDefaults() {
	cfg, err := LoadConfig("")

	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), cfg)

	assert.Equal(suite.T(), "", cfg.Watch.Root)
	assert.Empty(suite.T(), cfg.Watch.Ignore)
	assert.Equal(suite.T(), 4096, cfg.Watch.QueueCapacity)
	assert.True(suite.T(), cfg.Watch.Recursive)
	assert.True(suite.T(), cfg.Watch.AutoRefreshOnOverflow)
	assert.Equal(suite.T(), internal.DefaultSnapshotDSN, cfg.Snapshots.DSN)
	assert.Equal(suite.T(), slog.LevelInfo, cfg.Log.SlogLevel())
}

func (suite *ConfigTestSuite) TestLoadConfigWithFile() {
	configContent := `
watch:
  root: "/srv/data"
  ignore:
    - "*.tmp"
    - ".git/"
  queueCapacity: 16
  recursive: false
  autoRefreshOnOverflow: false
snapshots:
  dsn: "file:test.db"
log:
  level: debug
`

	configFile := filepath.Join(suite.tempDir, "config.yaml")
	require.NoError(suite.T(), os.WriteFile(configFile, []byte(configContent), 0o644))

	cfg, err := LoadConfig(configFile)
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), "/srv/data", cfg.Watch.Root)
	assert.Equal(suite.T(), []string{"*.tmp", ".git/"}, cfg.Watch.Ignore)
	assert.Equal(suite.T(), 16, cfg.Watch.QueueCapacity)
	assert.False(suite.T(), cfg.Watch.Recursive)
	assert.False(suite.T(), cfg.Watch.AutoRefreshOnOverflow)
	assert.Equal(suite.T(), "file:test.db", cfg.Snapshots.DSN)
	assert.Equal(suite.T(), slog.LevelDebug, cfg.Log.SlogLevel())

	wc := cfg.Watch.WatcherConfig()
	assert.Equal(suite.T(), 16, wc.QueueCapacity)
	assert.False(suite.T(), wc.Recursive)
	assert.Equal(suite.T(), cfg.Watch.Ignore, wc.Ignore)
}

func (suite *ConfigTestSuite) TestLoadConfigFromSearchPath() {
	configContent := "watch:\n  root: \"/from/cwd\"\n"
	require.NoError(suite.T(), os.WriteFile(filepath.Join(suite.tempDir, "config.yaml"), []byte(configContent), 0o644))

	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "/from/cwd", cfg.Watch.Root)
}

func (suite *ConfigTestSuite) TestEnvironmentOverride() {
	suite.T().Setenv("TFC_WATCH_ROOT", "/from/env")
	suite.T().Setenv("TFC_LOG_LEVEL", "warn")

	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "/from/env", cfg.Watch.Root)
	assert.Equal(suite.T(), slog.LevelWarn, cfg.Log.SlogLevel())
}

func (suite *ConfigTestSuite) TestLoadConfigInvalidFile() {
	cfg, err := LoadConfig("/nonexistent/path/config.yaml")

	assert.Error(suite.T(), err)
	assert.Nil(suite.T(), cfg)
}

func (suite *ConfigTestSuite) TestLoadConfigMalformedFile() {
	malformedContent := `
watch:
  root: "/srv"
  ignore: [unclosed bracket
`

	configFile := filepath.Join(suite.tempDir, "malformed.yaml")
	require.NoError(suite.T(), os.WriteFile(configFile, []byte(malformedContent), 0o644))

	cfg, err := LoadConfig(configFile)
	assert.Error(suite.T(), err)
	assert.Nil(suite.T(), cfg)
}

func TestSlogLevelFallback(t *testing.T) {
	assert.Equal(t, slog.LevelInfo, LogConfig{}.SlogLevel())
	assert.Equal(t, slog.LevelInfo, LogConfig{Level: "loud"}.SlogLevel())
	assert.Equal(t, slog.LevelError, LogConfig{Level: "ERROR"}.SlogLevel())
}

func TestSettings(t *testing.T) {
	file := filepath.Join(t.TempDir(), "nested", "settings.yaml")

	s, err := NewSettings(file)
	require.NoError(t, err)
	assert.Equal(t, file, s.File())
	assert.Equal(t, "C:\\", s.Load(internal.LastFolderKey, "C:\\"), "missing key falls back")

	require.NoError(t, s.Save(internal.LastFolderKey, "/srv/data"))
	assert.Equal(t, "/srv/data", s.Load(internal.LastFolderKey, ""))
	assert.FileExists(t, file)

	reopened, err := NewSettings(file)
	require.NoError(t, err)
	assert.Equal(t, "/srv/data", reopened.Load(internal.LastFolderKey, ""))
	assert.Equal(t, "/srv/data", reopened.Load("lastfolder", ""), "keys are case-insensitive")
}

func TestSettingsMalformedFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(file, []byte("LastFolder: [oops\n"), 0o644))

	_, err := NewSettings(file)
	assert.Error(t, err)
}
