package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Workspace  WorkspaceConfig  `yaml:"workspace"`
	Sync       SyncConfig       `yaml:"sync"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	Export     ExportConfig     `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type WorkspaceConfig struct {
	BaseURL        string  `yaml:"base_url"`
	Token          string  `yaml:"token"` // bearer credential, usually ${WORKSPACE_TOKEN}
	RequestTimeout int     `yaml:"request_timeout"`  // seconds
	RequestsPerSec float64 `yaml:"requests_per_sec"` // outbound self-throttle
	Burst          int     `yaml:"burst"`

	// First-run provisioning of the connected workspace. Once a sync_config
	// row exists in the store these are ignored.
	DatabaseID    string `yaml:"database_id"`
	RootPageID    string `yaml:"root_page_id"`
	WorkspaceName string `yaml:"workspace_name"`
}

type SyncConfig struct {
	Debounce        int `yaml:"debounce"`         // seconds
	MaxRetries      int `yaml:"max_retries"`      // attempts before terminal failure
	UnknownDelay    int `yaml:"unknown_delay"`    // seconds, pause after unclassified errors
	RecheckInterval int `yaml:"recheck_interval"` // seconds, queue re-check for out-of-process writes
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; it only feeds ${VAR} expansion below.
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Workspace.BaseURL == "" {
		return errors.New("workspace base_url is required")
	}
	if c.Workspace.RequestTimeout < 0 {
		return fmt.Errorf("workspace request_timeout must be >= 0, got %d", c.Workspace.RequestTimeout)
	}
	if c.Sync.MaxRetries < 1 {
		return fmt.Errorf("sync max_retries must be >= 1, got %d", c.Sync.MaxRetries)
	}
	if c.Redis.Enabled && c.Redis.Address == "" {
		return errors.New("redis address is required when redis is enabled")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "lanread-syncd"
	}
	if c.Workspace.RequestTimeout == 0 {
		c.Workspace.RequestTimeout = 30
	}
	if c.Workspace.RequestsPerSec == 0 {
		c.Workspace.RequestsPerSec = 3
	}
	if c.Workspace.Burst == 0 {
		c.Workspace.Burst = 3
	}
	if c.Sync.Debounce == 0 {
		c.Sync.Debounce = 2
	}
	if c.Sync.MaxRetries == 0 {
		c.Sync.MaxRetries = 5
	}
	if c.Sync.UnknownDelay == 0 {
		c.Sync.UnknownDelay = 8
	}
	if c.Sync.RecheckInterval == 0 {
		c.Sync.RecheckInterval = 120
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Backup.RetentionDays == 0 {
		c.Backup.RetentionDays = 7
	}
}

// RequestTimeoutDuration returns the outbound call timeout as a Duration.
func (c *WorkspaceConfig) RequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// DebounceDuration returns the enqueue debounce window as a Duration.
func (c *SyncConfig) DebounceDuration() time.Duration {
	return time.Duration(c.Debounce) * time.Second
}

// UnknownDelayDuration returns the unclassified-error pause as a Duration.
func (c *SyncConfig) UnknownDelayDuration() time.Duration {
	return time.Duration(c.UnknownDelay) * time.Second
}

// RecheckIntervalDuration returns the periodic queue re-check as a Duration.
// The reader app writes annotations from its own process, so the daemon
// re-checks the queue even without an in-process enqueue signal.
func (c *SyncConfig) RecheckIntervalDuration() time.Duration {
	return time.Duration(c.RecheckInterval) * time.Second
}
