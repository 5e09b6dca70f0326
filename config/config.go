// Package config loads service settings from a TOML file, a .env file and
// the environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/warp/variance-engine/variance"
)

// Config holds all service configuration.
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Storage    StorageConfig    `toml:"storage"`
	Cache      CacheConfig      `toml:"cache"`
	Log        LogConfig        `toml:"log"`
	Thresholds ThresholdsConfig `toml:"thresholds"`
	Batch      BatchConfig      `toml:"batch"`
}

type ServerConfig struct {
	Port            string   `toml:"port"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
	AllowedOrigins  []string `toml:"allowed_origins"`
}

// StorageConfig selects the result/threshold store. When DatabaseURL is set
// PostgreSQL is used; otherwise SQLite at SQLitePath.
type StorageConfig struct {
	SQLitePath  string `toml:"sqlite_path"`
	DatabaseURL string `toml:"database_url,omitempty"`
}

type CacheConfig struct {
	TTL             Duration `toml:"ttl"`
	CleanupInterval Duration `toml:"cleanup_interval"`
}

type LogConfig struct {
	Level string `toml:"level"`
	JSON  bool   `toml:"json"`
}

// ThresholdsConfig is the fallback for organizations with no saved
// thresholds. Values are percents.
type ThresholdsConfig struct {
	Profile          string  `toml:"profile"`
	WarningPercent   float64 `toml:"warning_percent"`
	CriticalPercent  float64 `toml:"critical_percent"`
	FavorablePercent float64 `toml:"favorable_percent"`
}

type BatchConfig struct {
	Workers int `toml:"workers"`
}

// Duration decodes TOML strings such as "5m" or "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:            "8080",
			ShutdownTimeout: Duration{10 * time.Second},
			AllowedOrigins:  []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Storage: StorageConfig{
			SQLitePath: "./variance.db",
		},
		Cache: CacheConfig{
			TTL:             Duration{5 * time.Minute},
			CleanupInterval: Duration{time.Minute},
		},
		Log: LogConfig{
			Level: "info",
		},
		Thresholds: ThresholdsConfig{
			Profile:          string(variance.ProfileStandard),
			WarningPercent:   10,
			CriticalPercent:  15,
			FavorablePercent: -5,
		},
		Batch: BatchConfig{
			Workers: 4,
		},
	}
}

// Load reads path (if it exists), then .env (if it exists), then applies
// environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parsing config: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return cfg, fmt.Errorf("reading config: %w", err)
		}
	}

	// .env never overrides variables already set in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("loading .env: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}

	// A zero interval would stop the cache janitor's ticker from starting.
	if cfg.Cache.CleanupInterval.Duration <= 0 {
		cfg.Cache.CleanupInterval = DefaultConfig().Cache.CleanupInterval
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("VARIANCE_PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("VARIANCE_DB"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Storage.DatabaseURL = v
	}
	if v := os.Getenv("VARIANCE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("VARIANCE_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("VARIANCE_CACHE_TTL: %w", err)
		}
		cfg.Cache.TTL = Duration{d}
	}
	if v := os.Getenv("VARIANCE_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("VARIANCE_WORKERS: %w", err)
		}
		cfg.Batch.Workers = n
	}
	return nil
}

// DefaultThresholds converts the [thresholds] section into engine config.
func (c Config) DefaultThresholds() (variance.ThresholdConfig, error) {
	t := c.Thresholds
	warning, err := variance.AmountFromFloat("config", "warning_percent", t.WarningPercent)
	if err != nil {
		return variance.ThresholdConfig{}, err
	}
	critical, err := variance.AmountFromFloat("config", "critical_percent", t.CriticalPercent)
	if err != nil {
		return variance.ThresholdConfig{}, err
	}
	favorable, err := variance.AmountFromFloat("config", "favorable_percent", t.FavorablePercent)
	if err != nil {
		return variance.ThresholdConfig{}, err
	}

	cfg := variance.ThresholdConfig{
		Profile:          variance.Profile(t.Profile),
		WarningPercent:   warning,
		CriticalPercent:  critical,
		FavorablePercent: favorable,
	}.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return variance.ThresholdConfig{}, err
	}
	return cfg, nil
}

// Save writes cfg as TOML.
func Save(path string, cfg Config) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
