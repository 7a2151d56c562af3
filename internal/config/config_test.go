package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, ":8080", cfg.HTTP.Address)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, PresenceMemory, cfg.Realtime.Presence)
	assert.Equal(t, 50, cfg.Realtime.ActivityBuffer)
	assert.Equal(t, 5*time.Minute, cfg.Realtime.LiveWindow)
	assert.Equal(t, 30*time.Minute, cfg.Analytics.SessionTimeout)
	assert.Equal(t, "last_30_days", cfg.Analytics.DefaultPeriod)
	assert.Equal(t, []string{"cv", "resume"}, cfg.Analytics.CVDownloadElements)
	assert.Contains(t, cfg.Analytics.SearchEngines, "duckduckgo")
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestLoadConfig_FileAndEnvironment(t *testing.T) {
	path := writeConfig(t, `
env: production
http:
  address: ":9090"
  allowed_origins: ["https://example.com"]
storage:
  driver: clickhouse
  clickhouse:
    addr: ["ch-1:9000", "ch-2:9000"]
    batch_size: 500
realtime:
  presence: redis
analytics:
  timezone: Europe/Amsterdam
  site_hosts: ["example.com"]
`)
	t.Setenv("DASHBOARD_TOKEN", "from-env")
	t.Setenv("ANALYTICS_DEFAULT_PERIOD", "last_7_days")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, ":9090", cfg.HTTP.Address)
	assert.Equal(t, []string{"https://example.com"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, DriverClickHouse, cfg.Storage.Driver)
	assert.Equal(t, []string{"ch-1:9000", "ch-2:9000"}, cfg.Storage.ClickHouse.Addr)
	assert.Equal(t, 500, cfg.Storage.ClickHouse.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.Storage.ClickHouse.FlushInterval)
	assert.Equal(t, PresenceRedis, cfg.Realtime.Presence)
	assert.Equal(t, "from-env", cfg.Dashboard.Token)
	assert.Equal(t, "last_7_days", cfg.Analytics.DefaultPeriod)
	assert.Equal(t, "Europe/Amsterdam", cfg.Location().String())
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := map[string]string{
		"driver":   "storage:\n  driver: postgres\n",
		"presence": "realtime:\n  presence: etcd\n",
		"period":   "analytics:\n  default_period: fortnight\n",
		"timezone": "analytics:\n  timezone: Mars/Olympus\n",
		"buffer":   "realtime:\n  activity_buffer: -1\n",
		"timeout":  "analytics:\n  session_timeout: -1m\n",
		"yaml":     "http: [",
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}
