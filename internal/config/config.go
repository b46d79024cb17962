// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config loads the immutable service configuration. Values come
// from an optional YAML file (ARCHIVESVC_CONFIG) overridden by environment
// variables. The resulting Config is passed explicitly; there are no
// configuration singletons.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Archiver holds job processing settings.
type Archiver struct {
	Threads            int  `yaml:"threads"`
	PollSeconds        int  `yaml:"poll_seconds"`
	RetrySeconds       int  `yaml:"retry_seconds"`
	TimestampFilenames bool `yaml:"timestamp_filenames"`
}

// Storage holds local and object storage settings.
type Storage struct {
	LocalLocation    string `yaml:"local_location"`
	PublicContainer  string `yaml:"public_container"`
	PrivateContainer string `yaml:"private_container"`
	PoolSize         int    `yaml:"pool_size"`
	S3Endpoint       string `yaml:"s3_endpoint"`
	S3Region         string `yaml:"s3_region"`
}

// Provider holds recording provider credentials.
type Provider struct {
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	BaseURL    string `yaml:"base_url"`
}

// Tools holds external audio tool paths.
type Tools struct {
	FFmpegPath       string `yaml:"ffmpeg_path"`
	SoxPath          string `yaml:"sox_path"`
	WorkingDirectory string `yaml:"working_directory"`
}

// Config is the complete service configuration.
type Config struct {
	Archiver      Archiver `yaml:"archiver"`
	Storage       Storage  `yaml:"storage"`
	Provider      Provider `yaml:"provider"`
	Tools         Tools    `yaml:"tools"`
	DBConnection  string   `yaml:"db_connection"`
	ControlListen string   `yaml:"control_listen"`
	LogLevel      string   `yaml:"log_level"`
	OTLPEndpoint  string   `yaml:"otlp_endpoint"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Archiver: Archiver{
			Threads:      1,
			PollSeconds:  60,
			RetrySeconds: 300,
		},
		Storage: Storage{
			LocalLocation: "./storage",
			PoolSize:      4,
			S3Region:      "us-east-1",
		},
		Tools: Tools{
			FFmpegPath:       "ffmpeg",
			SoxPath:          "sox",
			WorkingDirectory: "./storage",
		},
		ControlListen: ":9094",
	}
}

// Load builds the configuration from defaults, the optional YAML file named
// by ARCHIVESVC_CONFIG, and the environment, in increasing precedence.
func Load() (Config, error) {
	cfg := Defaults()

	if path := os.Getenv("ARCHIVESVC_CONFIG"); path != "" {
		raw, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path
		if err != nil {
			return Config{}, fmt.Errorf("config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Archiver.Threads = ParseInt("ARCHIVER_THREADS", c.Archiver.Threads)
	c.Archiver.PollSeconds = ParseInt("ARCHIVER_POLL_SECONDS", c.Archiver.PollSeconds)
	c.Archiver.RetrySeconds = ParseInt("ARCHIVER_RETRY_SECONDS", c.Archiver.RetrySeconds)
	c.Archiver.TimestampFilenames = ParseBool("ARCHIVER_TIMESTAMP_FILENAMES", c.Archiver.TimestampFilenames)

	c.Storage.LocalLocation = ParseString("STORAGE_LOCAL_LOCATION", c.Storage.LocalLocation)
	c.Storage.PublicContainer = ParseString("STORAGE_PUBLIC_CONTAINER", c.Storage.PublicContainer)
	c.Storage.PrivateContainer = ParseString("STORAGE_PRIVATE_CONTAINER", c.Storage.PrivateContainer)
	c.Storage.PoolSize = ParseInt("STORAGE_POOL_SIZE", c.Storage.PoolSize)
	c.Storage.S3Endpoint = ParseString("STORAGE_S3_ENDPOINT", c.Storage.S3Endpoint)
	c.Storage.S3Region = ParseString("STORAGE_S3_REGION", c.Storage.S3Region)

	c.Provider.AccountSID = ParseString("PROVIDER_ACCOUNT_SID", c.Provider.AccountSID)
	c.Provider.AuthToken = ParseString("PROVIDER_AUTH_TOKEN", c.Provider.AuthToken)
	c.Provider.BaseURL = ParseString("PROVIDER_BASE_URL", c.Provider.BaseURL)

	c.Tools.FFmpegPath = ParseString("TOOLS_FFMPEG_PATH", c.Tools.FFmpegPath)
	c.Tools.SoxPath = ParseString("TOOLS_SOX_PATH", c.Tools.SoxPath)
	c.Tools.WorkingDirectory = ParseString("TOOLS_WORKING_DIRECTORY", c.Tools.WorkingDirectory)

	c.DBConnection = ParseString("DB_CONNECTION", c.DBConnection)
	c.ControlListen = ParseString("CONTROL_LISTEN", c.ControlListen)
	c.LogLevel = ParseString("LOG_LEVEL", c.LogLevel)
	c.OTLPEndpoint = ParseString("OTLP_ENDPOINT", c.OTLPEndpoint)
}

// Validate rejects configurations the service cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Archiver.Threads < 1 {
		errs = append(errs, fmt.Errorf("archiver.threads must be >= 1, got %d", c.Archiver.Threads))
	}
	if c.Archiver.PollSeconds < 1 {
		errs = append(errs, fmt.Errorf("archiver.poll_seconds must be >= 1, got %d", c.Archiver.PollSeconds))
	}
	if c.Archiver.RetrySeconds < 0 {
		errs = append(errs, fmt.Errorf("archiver.retry_seconds must be >= 0, got %d", c.Archiver.RetrySeconds))
	}
	if c.Storage.PoolSize < 1 {
		errs = append(errs, fmt.Errorf("storage.pool_size must be >= 1, got %d", c.Storage.PoolSize))
	}
	if c.Storage.LocalLocation == "" {
		errs = append(errs, errors.New("storage.local_location is required"))
	}
	if c.DBConnection == "" {
		errs = append(errs, errors.New("db_connection is required"))
	}
	if c.Tools.FFmpegPath == "" || c.Tools.SoxPath == "" {
		errs = append(errs, errors.New("tools.ffmpeg_path and tools.sox_path are required"))
	}
	if c.Tools.WorkingDirectory == "" {
		errs = append(errs, errors.New("tools.working_directory is required"))
	}
	return errors.Join(errs...)
}
