package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "8111", cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "data/finsight.db", cfg.Store.SQLitePath)
	assert.True(t, cfg.Schedule.Enabled)
	assert.Equal(t, "0 0 * * * *", cfg.Schedule.InsightsCron)
	assert.Equal(t, "0 30 2 * * *", cfg.Schedule.BenchmarkCron)
	assert.Equal(t, 32, cfg.Forecast.CacheSize)
	assert.Equal(t, "linear", cfg.Forecast.DefaultModel)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.NotEmpty(t, cfg.Server.CORSOrigins)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9000"
  cors_origins: ["https://app.example.com"]
store:
  driver: sqlite
  sqlite_path: /tmp/test.db
schedule:
  enabled: false
forecast:
  cache_size: 64
  default_model: mc
log_level: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "/tmp/test.db", cfg.Store.SQLitePath)
	assert.False(t, cfg.Schedule.Enabled)
	assert.Equal(t, 64, cfg.Forecast.CacheSize)
	assert.Equal(t, "mc", cfg.Forecast.DefaultModel)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: \"9000\"\n"), 0o644))

	t.Setenv("PORT", "7777")
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("FORECAST_CACHE_SIZE", "8")
	t.Setenv("SCHEDULE_ENABLED", "false")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "7777", cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 8, cfg.Forecast.CacheSize)
	assert.False(t, cfg.Schedule.Enabled)
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		driver  string
		project string
		wantErr bool
	}{
		{"memory", "memory", "", false},
		{"sqlite", "sqlite", "", false},
		{"firestore with project", "firestore", "my-project", false},
		{"firestore without project", "firestore", "", true},
		{"unknown driver", "postgres", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.Store.Driver = tt.driver
			cfg.Store.FirestoreProject = tt.project
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
