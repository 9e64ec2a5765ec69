package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /tmp/lanread.db
workspace:
  base_url: https://api.example.com/v1
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "lanread-syncd", cfg.App.Name)
	assert.Equal(t, 30, cfg.Workspace.RequestTimeout)
	assert.Equal(t, float64(3), cfg.Workspace.RequestsPerSec)
	assert.Equal(t, 3, cfg.Workspace.Burst)
	assert.Equal(t, 2, cfg.Sync.Debounce)
	assert.Equal(t, 5, cfg.Sync.MaxRetries)
	assert.Equal(t, 8, cfg.Sync.UnknownDelay)
	assert.Equal(t, 120, cfg.Sync.RecheckInterval)
	assert.Equal(t, 7, cfg.Backup.RetentionDays)
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_WORKSPACE_TOKEN", "secret-token")
	path := writeConfig(t, `
database:
  path: /tmp/lanread.db
workspace:
  base_url: https://api.example.com/v1
  token: ${TEST_WORKSPACE_TOKEN}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "secret-token", cfg.Workspace.Token)
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
app:
  name: lanread
  environment: test
database:
  path: /tmp/lanread.db
workspace:
  base_url: https://api.example.com/v1
  request_timeout: 10
  requests_per_sec: 2.5
  burst: 5
  database_id: db-1
  root_page_id: root-1
  workspace_name: My Workspace
sync:
  debounce: 3
  max_retries: 4
  unknown_delay: 12
  recheck_interval: 30
redis:
  enabled: true
  address: localhost:6379
  db: 1
monitoring:
  prometheus_enabled: true
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "lanread", cfg.App.Name)
	assert.Equal(t, "db-1", cfg.Workspace.DatabaseID)
	assert.Equal(t, "root-1", cfg.Workspace.RootPageID)
	assert.Equal(t, "My Workspace", cfg.Workspace.WorkspaceName)
	assert.Equal(t, 2.5, cfg.Workspace.RequestsPerSec)
	assert.Equal(t, 4, cfg.Sync.MaxRetries)
	assert.Equal(t, 30, cfg.Sync.RecheckInterval)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 9090, cfg.Monitoring.PrometheusPort, "prometheus port defaulted when enabled")
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing database path", `
workspace:
  base_url: https://api.example.com/v1
`},
		{"missing base url", `
database:
  path: /tmp/lanread.db
`},
		{"negative timeout", `
database:
  path: /tmp/lanread.db
workspace:
  base_url: https://api.example.com/v1
  request_timeout: -1
`},
		{"redis enabled without address", `
database:
  path: /tmp/lanread.db
workspace:
  base_url: https://api.example.com/v1
redis:
  enabled: true
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestDurationHelpers(t *testing.T) {
	w := WorkspaceConfig{RequestTimeout: 10}
	assert.Equal(t, 10*time.Second, w.RequestTimeoutDuration())

	s := SyncConfig{Debounce: 2, UnknownDelay: 8, RecheckInterval: 120}
	assert.Equal(t, 2*time.Second, s.DebounceDuration())
	assert.Equal(t, 8*time.Second, s.UnknownDelayDuration())
	assert.Equal(t, 2*time.Minute, s.RecheckIntervalDuration())
}
