package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"estatesync/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Logging    LoggingConfig    `yaml:"logging"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Backup     BackupConfig     `yaml:"backup"`
	Source     SourceConfig     `yaml:"source"`
	Google     GoogleConfig     `yaml:"google"`
	Sync       SyncConfig       `yaml:"sync"`
	API        APIConfig        `yaml:"api"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

// SourceConfig selects where spreadsheet rows come from.
type SourceConfig struct {
	Type     string `yaml:"type"` // "sheets" or "xlsx"
	XLSXPath string `yaml:"xlsx_path"`
	Sheet    string `yaml:"sheet"`
}

type GoogleConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	SpreadsheetID   string `yaml:"spreadsheet_id"`
	ReadRange       string `yaml:"read_range"`
}

// SyncConfig tunes the batch pipeline and the pending-change queue.
type SyncConfig struct {
	Type                 string        `yaml:"type"` // sync type label, e.g. "listings"
	Interval             time.Duration `yaml:"interval"`
	BatchSize            int           `yaml:"batch_size"`
	Concurrency          int           `yaml:"concurrency"`
	RateLimit            float64       `yaml:"rate_limit"` // store calls per second
	RateBurst            int           `yaml:"rate_burst"`
	MaxRetries           int           `yaml:"max_retries"`
	InitialDelay         time.Duration `yaml:"initial_delay"`
	MaxDelay             time.Duration `yaml:"max_delay"`
	BackoffFactor        float64       `yaml:"backoff_factor"`
	MaxQueueDepth        int           `yaml:"max_queue_depth"`
	QueuePollInterval    time.Duration `yaml:"queue_poll_interval"`
	ChangeRetentionDays  int           `yaml:"change_retention_days"`
	HistoryRetentionDays int           `yaml:"history_retention_days"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	Port      int                `yaml:"port"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key  string `yaml:"key"`
	Name string `yaml:"name"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

func Load(configPath string) (*Config, error) {
	// .env дополняет окружение перед подстановкой в YAML
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

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

	switch c.Source.Type {
	case "sheets":
		if c.Google.CredentialsFile == "" {
			return errors.New("google credentials_file is required for sheets source")
		}
		if c.Google.SpreadsheetID == "" {
			return errors.New("google spreadsheet_id is required for sheets source")
		}
	case "xlsx":
		if c.Source.XLSXPath == "" {
			return errors.New("source xlsx_path is required for xlsx source")
		}
	case "":
		return errors.New("source type is required")
	default:
		return fmt.Errorf("unknown source type: %s", c.Source.Type)
	}

	if c.Sync.BatchSize < 0 || c.Sync.Concurrency < 0 {
		return errors.New("sync batch_size and concurrency must not be negative")
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.Sync.Type == "" {
		c.Sync.Type = "listings"
	}
	if c.Sync.Interval == 0 {
		c.Sync.Interval = 15 * time.Minute
	}
	if c.Sync.BatchSize == 0 {
		c.Sync.BatchSize = models.DefaultBatchSize
	}
	if c.Sync.Concurrency == 0 {
		c.Sync.Concurrency = models.DefaultConcurrency
	}
	if c.Sync.RateLimit == 0 {
		c.Sync.RateLimit = models.DefaultRateLimit
	}
	if c.Sync.RateBurst == 0 {
		c.Sync.RateBurst = 1
	}
	if c.Sync.MaxRetries == 0 {
		c.Sync.MaxRetries = models.DefaultMaxRetries
	}
	if c.Sync.InitialDelay == 0 {
		c.Sync.InitialDelay = 2 * time.Second
	}
	if c.Sync.MaxDelay == 0 {
		c.Sync.MaxDelay = time.Minute
	}
	if c.Sync.BackoffFactor == 0 {
		c.Sync.BackoffFactor = 2
	}
	if c.Sync.MaxQueueDepth == 0 {
		c.Sync.MaxQueueDepth = models.DefaultMaxQueueDepth
	}
	if c.Sync.QueuePollInterval == 0 {
		c.Sync.QueuePollInterval = models.DefaultQueuePollSeconds * time.Second
	}
	if c.Sync.ChangeRetentionDays == 0 {
		c.Sync.ChangeRetentionDays = models.DefaultChangeRetentionDays
	}
	if c.Sync.HistoryRetentionDays == 0 {
		c.Sync.HistoryRetentionDays = models.DefaultHistoryRetentionDays
	}
	if c.Google.ReadRange == "" {
		c.Google.ReadRange = "Listings!A1:Z"
	}
	if c.Source.Sheet == "" {
		c.Source.Sheet = "Listings"
	}
	if c.API.Enabled && c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
}
