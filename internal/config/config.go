// Package config loads the daemon's YAML configuration file: a plain struct
// decoded with gopkg.in/yaml.v3, defaults applied before the file is
// unmarshaled over them so a partial file only overrides what it names.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/atelier-assets/atelier/internal/logging"
)

// Config is the daemon's top-level configuration: watch roots, database
// location, importer concurrency, compression threshold, tracker debounce,
// and the listen address for the control surface.
type Config struct {
	// DataDir is the directory holding the bbolt database and the daemon
	// lock file. Empty means use the default per-user data directory.
	DataDir string `yaml:"data_dir"`
	// WatchDirectories are the absolute roots the File Tracker watches.
	WatchDirectories []string `yaml:"watch_directories"`
	// ListenAddress is the address the control surface (status/inspection
	// endpoint) binds to.
	ListenAddress string `yaml:"listen_address"`
	// ImporterConcurrency bounds cross-path parallel imports (internal/importer.Pool).
	ImporterConcurrency int64 `yaml:"importer_concurrency"`
	// ArtifactCompressionThresholdBytes is the minimum artifact size (in
	// bytes) eligible for LZ4 compression in the Artifact Cache.
	ArtifactCompressionThresholdBytes int `yaml:"artifact_compression_threshold_bytes"`
	// DebounceWindow is the File Tracker's batch debounce interval.
	DebounceWindow time.Duration `yaml:"debounce_window"`
	// LogLevel is the minimum logging.Level name emitted by the daemon.
	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when no file is present or when a
// loaded file omits a field.
func Default() *Config {
	return &Config{
		WatchDirectories:                  nil,
		ListenAddress:                     "127.0.0.1:0",
		ImporterConcurrency:               4,
		ArtifactCompressionThresholdBytes: 256,
		DebounceWindow:                    50 * time.Millisecond,
		LogLevel:                          "info",
	}
}

// Load reads and parses the YAML configuration file at path, starting from
// Default() and overriding only the fields the file specifies. A missing
// file is not an error: Default() is returned as-is.
func Load(path string) (*Config, error) {
	result := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return nil, fmt.Errorf("unable to read configuration file: %w", err)
	}

	if err := yaml.Unmarshal(data, result); err != nil {
		return nil, fmt.Errorf("unable to parse configuration file: %w", err)
	}

	return result, nil
}

// ParseLogLevel resolves the configured LogLevel name to a logging.Level via
// logging.NameToLevel, falling back to logging.LevelInfo (with a warning)
// for an unrecognized name rather than failing daemon startup over a typo.
func ParseLogLevel(name string, logger *logging.Logger) logging.Level {
	if name == "" {
		return logging.LevelInfo
	}
	if level, ok := logging.NameToLevel(name); ok {
		return level
	}
	logger.Warnf("unrecognized log level %q, defaulting to info", name)
	return logging.LevelInfo
}
