// Package config loads the application configuration: built-in defaults,
// then an optional YAML file, then DP_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override. Nested keys are separated
// by a double underscore: DP_ANALYSIS__MERGE_THRESHOLD=3.
const EnvPrefix = "DP_"

// Config is the top-level application configuration.
// It is loaded from ~/.config/dp-leastpriv/config.yaml and must never be
// committed with real secrets.
type Config struct {
	Log      LogConfig      `koanf:"log"`
	Analysis AnalysisConfig `koanf:"analysis"`
	AWS      AWSConfig      `koanf:"aws"`
	Store    StoreConfig    `koanf:"store"`
	Metrics  MetricsConfig  `koanf:"metrics"`
}

// LogConfig selects the zap level and encoder.
type LogConfig struct {
	Level  string `koanf:"level"  validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=console json"`
}

// AnalysisConfig tunes the analysis pipeline.
type AnalysisConfig struct {
	// WindowDays is the sliding activity window ending now. Zero disables
	// the window.
	WindowDays int `koanf:"window_days" validate:"gte=0"`

	// MergeThreshold is the minimum number of distinct resources under one
	// prefix before the reducer emits a wildcard pattern.
	MergeThreshold int `koanf:"merge_threshold" validate:"gte=2"`

	// Workers bounds per-principal parallelism. Zero means GOMAXPROCS.
	Workers int `koanf:"workers" validate:"gte=0"`
}

// AWSConfig holds AWS-specific defaults used when flags are not provided.
type AWSConfig struct {
	// DefaultProfile is used when no --profile flag is provided.
	DefaultProfile string `koanf:"default_profile"`

	// Regions restricts CloudTrail lookups. Empty means every active region.
	Regions []string `koanf:"regions"`
}

// StoreConfig locates the report history database.
type StoreConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path" validate:"required_if=Enabled true"`
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	// TextfilePath, when set, receives the run metrics after every analysis.
	TextfilePath string `koanf:"textfile_path"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Log:      LogConfig{Level: "info", Format: "console"},
		Analysis: AnalysisConfig{WindowDays: 90, MergeThreshold: 2},
		Store:    StoreConfig{Enabled: true, Path: defaultStorePath()},
	}
}

// Loader is the interface for reading Config from disk.
// Default implementation reads from ~/.config/dp-leastpriv/config.yaml.
type Loader interface {
	// Load reads, parses, and validates the configuration file.
	Load() (*Config, error)

	// ConfigPath returns the absolute path to the configuration file.
	ConfigPath() string
}

// FileLoader layers defaults, the YAML file at Path and the environment.
// A missing file is not an error.
type FileLoader struct {
	Path string
}

// NewLoader returns a FileLoader for path, or for DefaultPath when path is
// empty.
func NewLoader(path string) *FileLoader {
	if path == "" {
		path = DefaultPath()
	}
	return &FileLoader{Path: path}
}

func (l *FileLoader) ConfigPath() string { return l.Path }

func (l *FileLoader) Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if l.Path != "" {
		if _, err := os.Stat(l.Path); err == nil {
			if err := k.Load(file.Provider(l.Path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("loading %s: %w", l.Path, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("stat %s: %w", l.Path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct tags on cfg.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// DefaultPath returns ~/.config/dp-leastpriv/config.yaml, or "" when the
// home directory cannot be resolved.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "dp-leastpriv", "config.yaml")
}

func defaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".dp-leastpriv", "history")
	}
	return filepath.Join(dir, "dp-leastpriv", "history")
}
