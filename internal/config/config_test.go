// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	require.Equal(t, 1, cfg.Archiver.Threads)
	require.Equal(t, 60, cfg.Archiver.PollSeconds)
	require.Equal(t, 300, cfg.Archiver.RetrySeconds)
	require.False(t, cfg.Archiver.TimestampFilenames)
	require.Equal(t, 4, cfg.Storage.PoolSize)
	require.Equal(t, "ffmpeg", cfg.Tools.FFmpegPath)
	require.Equal(t, "sox", cfg.Tools.SoxPath)
	require.Equal(t, ":9094", cfg.ControlListen)
}

func TestLoadFromYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
archiver:
  threads: 4
  retry_seconds: 60
storage:
  local_location: /var/archive
  public_container: archive-public
db_connection: "sqlite:///var/archive/jobs.db"
log_level: debug
`), 0o644))
	t.Setenv("ARCHIVESVC_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 4, cfg.Archiver.Threads)
	require.Equal(t, 60, cfg.Archiver.RetrySeconds)
	require.Equal(t, 60, cfg.Archiver.PollSeconds, "unset file keys keep defaults")
	require.Equal(t, "/var/archive", cfg.Storage.LocalLocation)
	require.Equal(t, "archive-public", cfg.Storage.PublicContainer)
	require.Equal(t, "debug", cfg.LogLevel)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
archiver:
  threads: 4
db_connection: "sqlite://file.db"
`), 0o644))
	t.Setenv("ARCHIVESVC_CONFIG", path)
	t.Setenv("ARCHIVER_THREADS", "8")
	t.Setenv("DB_CONNECTION", "postgres://localhost/archive")
	t.Setenv("PROVIDER_ACCOUNT_SID", "AC1")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 8, cfg.Archiver.Threads)
	require.Equal(t, "postgres://localhost/archive", cfg.DBConnection)
	require.Equal(t, "AC1", cfg.Provider.AccountSID)
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("ARCHIVESVC_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := Defaults()
	valid.DBConnection = "sqlite://jobs.db"
	require.NoError(t, valid.Validate())

	for name, mutate := range map[string]func(*Config){
		"zero threads":       func(c *Config) { c.Archiver.Threads = 0 },
		"zero poll":          func(c *Config) { c.Archiver.PollSeconds = 0 },
		"negative retry":     func(c *Config) { c.Archiver.RetrySeconds = -1 },
		"zero pool size":     func(c *Config) { c.Storage.PoolSize = 0 },
		"no local storage":   func(c *Config) { c.Storage.LocalLocation = "" },
		"no db connection":   func(c *Config) { c.DBConnection = "" },
		"no sox path":        func(c *Config) { c.Tools.SoxPath = "" },
		"no working dir":     func(c *Config) { c.Tools.WorkingDirectory = "" },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := valid
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestParseHelpersFallBackOnInvalidInput(t *testing.T) {
	t.Setenv("ARCHIVER_THREADS", "not-a-number")
	require.Equal(t, 3, ParseInt("ARCHIVER_THREADS", 3))

	t.Setenv("ARCHIVER_TIMESTAMP_FILENAMES", "maybe")
	require.True(t, ParseBool("ARCHIVER_TIMESTAMP_FILENAMES", true))

	t.Setenv("EMPTY_VALUE", "")
	require.Equal(t, "fallback", ParseString("EMPTY_VALUE", "fallback"))
}
