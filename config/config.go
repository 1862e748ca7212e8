// Package config loads service settings from an optional YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"vismatch/imagehash"
	"vismatch/logging"
	"vismatch/types"
)

// PathEnv names the variable consulted when no --config flag is given
const PathEnv = "CONFIG_PATH"

// Config is the process configuration, read from an optional YAML file and the environment
type Config struct {
	Root      string `yaml:"root" env:"VISMATCH_ROOT" env-default:"./image_root"`
	HashType  string `yaml:"hash_type" env:"VISMATCH_HASH_TYPE" env-default:"perceptual"`
	HashWidth int    `yaml:"hash_width" env:"VISMATCH_HASH_WIDTH" env-default:"8"`
	// HashHeight of the hash grid; bits per hash is HashWidth*HashHeight
	HashHeight   int    `yaml:"hash_height" env:"VISMATCH_HASH_HEIGHT" env-default:"8"`
	ResizeFilter string `yaml:"resize_filter" env:"VISMATCH_RESIZE_FILTER" env-default:"area"`
	Workers      int    `yaml:"workers" env:"VISMATCH_WORKERS" env-default:"0"`

	Listen         string        `yaml:"listen" env:"VISMATCH_LISTEN" env-default:":3000"`
	CompareTimeout time.Duration `yaml:"compare_timeout" env:"VISMATCH_COMPARE_TIMEOUT" env-default:"30s"`
	RateLimit      float64       `yaml:"rate_limit" env:"VISMATCH_RATE_LIMIT" env-default:"0"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes" env:"VISMATCH_MAX_BODY_BYTES" env-default:"33554432"`

	Watch         bool          `yaml:"watch" env:"VISMATCH_WATCH" env-default:"false"`
	WatchDebounce time.Duration `yaml:"watch_debounce" env:"VISMATCH_WATCH_DEBOUNCE" env-default:"500ms"`

	LogLevel  string `yaml:"log_level" env:"VISMATCH_LOG_LEVEL" env-default:"info"`
	LogFormat string `yaml:"log_format" env:"VISMATCH_LOG_FORMAT" env-default:"text"`
	LogFile   string `yaml:"log_file" env:"VISMATCH_LOG_FILE"`
}

// Load reads path when it is non-empty, otherwise the environment only, and
// validates the result
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("cannot read config: %w", err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("cannot read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Path resolves the config file: flag first, then CONFIG_PATH
func Path(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(PathEnv)
}

// Validate reports every invalid setting at once
func (c *Config) Validate() error {
	var errs []error
	if c.Root == "" {
		errs = append(errs, errors.New("root must not be empty"))
	}
	if _, err := types.ParseHashType(c.HashType); err != nil {
		errs = append(errs, err)
	}
	if c.HashWidth <= 0 || c.HashHeight <= 0 {
		errs = append(errs, fmt.Errorf("hash size must be positive, got %dx%d", c.HashWidth, c.HashHeight))
	}
	if _, err := imagehash.ParseResizeFilter(c.ResizeFilter); err != nil {
		errs = append(errs, err)
	}
	if c.CompareTimeout <= 0 {
		errs = append(errs, fmt.Errorf("compare timeout must be positive, got %s", c.CompareTimeout))
	}
	if c.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("rate limit must not be negative, got %g", c.RateLimit))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("max body bytes must be positive, got %d", c.MaxBodyBytes))
	}
	if c.WatchDebounce < 0 {
		errs = append(errs, fmt.Errorf("watch debounce must not be negative, got %s", c.WatchDebounce))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log format must be text or json, got %q", c.LogFormat))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Hash returns the parsed hash type. Valid after Load
func (c *Config) Hash() types.HashType {
	t, _ := types.ParseHashType(c.HashType)
	return t
}

// Filter returns the parsed resize filter. Valid after Load
func (c *Config) Filter() imagehash.ResizeFilter {
	f, _ := imagehash.ParseResizeFilter(c.ResizeFilter)
	return f
}

// Logging returns the logger options
func (c *Config) Logging() logging.Options {
	return logging.Options{Level: c.LogLevel, Format: c.LogFormat, File: c.LogFile}
}
