// Package config loads service configuration from defaults, an optional
// TOML or YAML file, and environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigFile is read when CONFIG_FILE is unset and the file exists.
	DefaultConfigFile = "config.toml"

	EnvConfigFile      = "CONFIG_FILE"
	EnvPort            = "PORT"
	EnvDatabaseURL     = "DATABASE_URL"
	EnvLogLevel        = "LOG_LEVEL"
	EnvLogFormat       = "LOG_FORMAT"
	EnvMaxBodySize     = "MAX_BODY_SIZE"
	EnvIdempotencyTTL  = "IDEMPOTENCY_TTL"
	EnvJanitorInterval = "JANITOR_INTERVAL"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Port            string `toml:"port" yaml:"port"`
	DatabaseURL     string `toml:"database_url" yaml:"database_url"`
	LogLevel        string `toml:"log_level" yaml:"log_level"`
	LogFormat       string `toml:"log_format" yaml:"log_format"`
	MaxBodySize     string `toml:"max_body_size" yaml:"max_body_size"`
	ReadTimeout     string `toml:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    string `toml:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout string `toml:"shutdown_timeout" yaml:"shutdown_timeout"`
	IdempotencyTTL  string `toml:"idempotency_ttl" yaml:"idempotency_ttl"`
	JanitorInterval string `toml:"janitor_interval" yaml:"janitor_interval"`
}

func Default() Config {
	return Config{
		Port:            "8080",
		DatabaseURL:     "sqlite://taskboard.db",
		LogLevel:        "info",
		LogFormat:       "json",
		MaxBodySize:     "1MB",
		ReadTimeout:     "10s",
		WriteTimeout:    "10s",
		ShutdownTimeout: "10s",
		IdempotencyTTL:  "24h",
		JanitorInterval: "10m",
	}
}

// Load builds the configuration: defaults, then the config file, then the environment.
func Load() (Config, error) {
	cfg := Default()

	path := os.Getenv(EnvConfigFile)
	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		}
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return cfg, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	cfg.loadEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, c)
	case ".toml", "":
		return toml.Unmarshal(data, c)
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
}

func (c *Config) loadEnv() {
	overrides := map[string]*string{
		EnvPort:            &c.Port,
		EnvDatabaseURL:     &c.DatabaseURL,
		EnvLogLevel:        &c.LogLevel,
		EnvLogFormat:       &c.LogFormat,
		EnvMaxBodySize:     &c.MaxBodySize,
		EnvIdempotencyTTL:  &c.IdempotencyTTL,
		EnvJanitorInterval: &c.JanitorInterval,
		EnvShutdownTimeout: &c.ShutdownTimeout,
	}
	for key, field := range overrides {
		if v := os.Getenv(key); v != "" {
			*field = v
		}
	}
}

func (c Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("%w: port is empty", ErrInvalid)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("%w: database_url is empty", ErrInvalid)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("%w: log_format must be json or console, got %q", ErrInvalid, c.LogFormat)
	}
	if _, err := units.FromHumanSize(c.MaxBodySize); err != nil {
		return fmt.Errorf("%w: max_body_size: %v", ErrInvalid, err)
	}

	durations := map[string]string{
		"read_timeout":     c.ReadTimeout,
		"write_timeout":    c.WriteTimeout,
		"shutdown_timeout": c.ShutdownTimeout,
		"idempotency_ttl":  c.IdempotencyTTL,
		"janitor_interval": c.JanitorInterval,
	}
	for name, v := range durations {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, name, err)
		}
		if d <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalid, name)
		}
	}
	return nil
}

// MaxBodyBytes returns the request body limit in bytes.
func (c Config) MaxBodyBytes() int64 {
	n, _ := units.FromHumanSize(c.MaxBodySize)
	return n
}

func (c Config) ReadTimeoutDuration() time.Duration     { return mustDuration(c.ReadTimeout) }
func (c Config) WriteTimeoutDuration() time.Duration    { return mustDuration(c.WriteTimeout) }
func (c Config) ShutdownTimeoutDuration() time.Duration { return mustDuration(c.ShutdownTimeout) }
func (c Config) IdempotencyTTLDuration() time.Duration  { return mustDuration(c.IdempotencyTTL) }
func (c Config) JanitorIntervalDuration() time.Duration { return mustDuration(c.JanitorInterval) }

// mustDuration is only used on validated values.
func mustDuration(v string) time.Duration {
	d, _ := time.ParseDuration(v)
	return d
}
