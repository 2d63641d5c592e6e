package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server struct {
		Port        string   `yaml:"port"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`
	Store struct {
		Driver           string `yaml:"driver"` // memory, sqlite, firestore
		SQLitePath       string `yaml:"sqlite_path"`
		FirestoreProject string `yaml:"firestore_project"`
	} `yaml:"store"`
	Schedule struct {
		Enabled       bool   `yaml:"enabled"`
		InsightsCron  string `yaml:"insights_cron"`
		BenchmarkCron string `yaml:"benchmark_cron"`
	} `yaml:"schedule"`
	Forecast struct {
		CacheSize    int    `yaml:"cache_size"`
		DefaultModel string `yaml:"default_model"`
	} `yaml:"forecast"`
	LogLevel string `yaml:"log_level"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.Schedule.Enabled = true

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Store.SQLitePath = v
	}
	if v := os.Getenv("GOOGLE_CLOUD_PROJECT"); v != "" {
		cfg.Store.FirestoreProject = v
	}
	if v := os.Getenv("SCHEDULE_ENABLED"); v != "" {
		cfg.Schedule.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("INSIGHTS_CRON"); v != "" {
		cfg.Schedule.InsightsCron = v
	}
	if v := os.Getenv("BENCHMARK_CRON"); v != "" {
		cfg.Schedule.BenchmarkCron = v
	}
	if v := os.Getenv("FORECAST_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Forecast.CacheSize = n
		}
	}
	if v := os.Getenv("FORECAST_DEFAULT_MODEL"); v != "" {
		cfg.Forecast.DefaultModel = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	// Defaults
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8111"
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"http://localhost:1234", "http://127.0.0.1:1234"}
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "memory"
	}
	if cfg.Store.SQLitePath == "" {
		cfg.Store.SQLitePath = "data/finsight.db"
	}
	if cfg.Schedule.InsightsCron == "" {
		cfg.Schedule.InsightsCron = "0 0 * * * *"
	}
	if cfg.Schedule.BenchmarkCron == "" {
		cfg.Schedule.BenchmarkCron = "0 30 2 * * *"
	}
	if cfg.Forecast.CacheSize == 0 {
		cfg.Forecast.CacheSize = 32
	}
	if cfg.Forecast.DefaultModel == "" {
		cfg.Forecast.DefaultModel = "linear"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	return cfg, nil
}

// Validate checks driver-specific requirements.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory", "sqlite":
	case "firestore":
		if c.Store.FirestoreProject == "" {
			return fmt.Errorf("store.firestore_project is required for the firestore driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	return nil
}
