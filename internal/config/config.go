// Package config loads service settings from defaults, an optional YAML file
// and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Siddarth2230/asset-labels/internal/allocator"
	"github.com/Siddarth2230/asset-labels/internal/backend"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Labels   LabelsConfig   `yaml:"labels"`
	Cache    CacheConfig    `yaml:"cache"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
}

type DatabaseConfig struct {
	URL          string        `yaml:"url"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns"`
	LockTimeout  time.Duration `yaml:"lock_timeout"`
	MaxHold      time.Duration `yaml:"max_hold"`
	// BusyTimeout replaces LockTimeout on SQLite when set.
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

type LabelsConfig struct {
	Width       int           `yaml:"width"`
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

type CacheConfig struct {
	RedisURL string        `yaml:"redis_url"`
	TTL      time.Duration `yaml:"ttl"`
	LRUSize  int           `yaml:"lru_size"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// File enables a rotated log file in addition to stderr.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Default returns a config that runs against a local SQLite file.
func Default() Config {
	policy := allocator.DefaultRetryPolicy()
	return Config{
		Database: DatabaseConfig{
			URL:          "sqlite://labels.db",
			MaxOpenConns: 10,
			MaxIdleConns: 5,
			LockTimeout:  5 * time.Second,
			MaxHold:      2 * time.Second,
		},
		Labels: LabelsConfig{
			Width:       4,
			MaxAttempts: policy.MaxAttempts,
			BaseDelay:   policy.BaseDelay,
			MaxDelay:    policy.MaxDelay,
		},
		Cache: CacheConfig{
			TTL:     5 * time.Minute,
			LRUSize: 10000,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
	}
}

// Load builds the config: defaults, then the YAML file named by path (or
// CONFIG_FILE when path is empty), then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	c.Database.URL = getEnvString("DATABASE_URL", c.Database.URL)
	c.Database.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", c.Database.MaxIdleConns)
	c.Database.LockTimeout = getEnvDuration("DB_LOCK_TIMEOUT", c.Database.LockTimeout)
	c.Database.MaxHold = getEnvDuration("DB_MAX_HOLD", c.Database.MaxHold)
	c.Database.BusyTimeout = getEnvDuration("SQLITE_BUSY_TIMEOUT", c.Database.BusyTimeout)

	c.Labels.Width = getEnvInt("LABEL_WIDTH", c.Labels.Width)
	c.Labels.MaxAttempts = getEnvInt("ALLOC_MAX_ATTEMPTS", c.Labels.MaxAttempts)
	c.Labels.BaseDelay = getEnvDuration("ALLOC_BASE_DELAY", c.Labels.BaseDelay)
	c.Labels.MaxDelay = getEnvDuration("ALLOC_MAX_DELAY", c.Labels.MaxDelay)

	c.Cache.RedisURL = getEnvString("REDIS_URL", c.Cache.RedisURL)
	c.Cache.TTL = getEnvDuration("CACHE_TTL", c.Cache.TTL)
	c.Cache.LRUSize = getEnvInt("LRU_SIZE", c.Cache.LRUSize)

	c.Server.Addr = getEnvString("SERVER_ADDR", c.Server.Addr)

	c.Log.Level = getEnvString("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnvString("LOG_FORMAT", c.Log.Format)
	c.Log.File = getEnvString("LOG_FILE", c.Log.File)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	url := c.Database.URL
	switch {
	case url == "":
		errs = append(errs, errors.New("DATABASE_URL is required"))
	case !strings.HasPrefix(url, "postgres://") && !strings.HasPrefix(url, "postgresql://") &&
		!strings.HasPrefix(url, "sqlite://") && !strings.HasPrefix(url, "file:"):
		errs = append(errs, errors.New("DATABASE_URL must start with postgres://, postgresql://, sqlite:// or file:"))
	}
	if c.Database.LockTimeout <= 0 {
		errs = append(errs, errors.New("DB_LOCK_TIMEOUT must be positive"))
	}
	if c.Database.MaxHold <= 0 {
		errs = append(errs, errors.New("DB_MAX_HOLD must be positive"))
	}
	if c.Labels.Width < 1 || c.Labels.Width > 13 {
		errs = append(errs, fmt.Errorf("LABEL_WIDTH must be between 1 and 13: given %d", c.Labels.Width))
	}
	if err := c.RetryPolicy().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Cache.LRUSize < 1 {
		errs = append(errs, errors.New("LRU_SIZE must be positive"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json: given %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// IsSQLite reports whether the database URL names an SQLite file.
func (c *Config) IsSQLite() bool {
	return strings.HasPrefix(c.Database.URL, "sqlite://") || strings.HasPrefix(c.Database.URL, "file:")
}

// Backend translates the database section for backend.Open.
func (c *Config) Backend() backend.Config {
	lock := c.Database.LockTimeout
	if c.IsSQLite() && c.Database.BusyTimeout > 0 {
		lock = c.Database.BusyTimeout
	}
	return backend.Config{
		URL:          c.Database.URL,
		MaxOpenConns: c.Database.MaxOpenConns,
		MaxIdleConns: c.Database.MaxIdleConns,
		LockTimeout:  lock,
		MaxHold:      c.Database.MaxHold,
	}
}

func (c *Config) RetryPolicy() allocator.RetryPolicy {
	return allocator.RetryPolicy{
		MaxAttempts: c.Labels.MaxAttempts,
		BaseDelay:   c.Labels.BaseDelay,
		MaxDelay:    c.Labels.MaxDelay,
	}
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
