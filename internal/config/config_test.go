package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	// Create a temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
app:
  name: "estatesync"
  environment: "test"
database:
  path: "test.db"
source:
  type: "xlsx"
  xlsx_path: "listings.xlsx"
sync:
  batch_size: 25
  interval: 15m
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.App.Name != "estatesync" {
		t.Errorf("expected app name estatesync, got %s", cfg.App.Name)
	}
	if cfg.Sync.BatchSize != 25 {
		t.Errorf("expected batch_size 25, got %d", cfg.Sync.BatchSize)
	}
	if cfg.Sync.Interval != 15*time.Minute {
		t.Errorf("expected interval 15m, got %s", cfg.Sync.Interval)
	}
}

func TestLoadConfigExpandsEnv(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("TEST_DB_PATH", filepath.Join(tmpDir, "expanded.db"))

	yamlContent := `
database:
  path: "${TEST_DB_PATH}"
source:
  type: "xlsx"
  xlsx_path: "listings.xlsx"
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Database.Path != os.Getenv("TEST_DB_PATH") {
		t.Errorf("expected expanded path, got %s", cfg.Database.Path)
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid xlsx config",
			cfg: Config{
				Database: DatabaseConfig{Path: "db.sqlite"},
				Source:   SourceConfig{Type: "xlsx", XLSXPath: "listings.xlsx"},
			},
			wantErr: false,
		},
		{
			name: "missing database path",
			cfg: Config{
				Source: SourceConfig{Type: "xlsx", XLSXPath: "listings.xlsx"},
			},
			wantErr: true,
		},
		{
			name: "sheets source without credentials",
			cfg: Config{
				Database: DatabaseConfig{Path: "db.sqlite"},
				Source:   SourceConfig{Type: "sheets"},
			},
			wantErr: true,
		},
		{
			name: "sheets source without spreadsheet id",
			cfg: Config{
				Database: DatabaseConfig{Path: "db.sqlite"},
				Source:   SourceConfig{Type: "sheets"},
				Google:   GoogleConfig{CredentialsFile: "creds.json"},
			},
			wantErr: true,
		},
		{
			name: "unknown source type",
			cfg: Config{
				Database: DatabaseConfig{Path: "db.sqlite"},
				Source:   SourceConfig{Type: "csv"},
			},
			wantErr: true,
		},
		{
			name: "negative concurrency",
			cfg: Config{
				Database: DatabaseConfig{Path: "db.sqlite"},
				Source:   SourceConfig{Type: "xlsx", XLSXPath: "listings.xlsx"},
				Sync:     SyncConfig{Concurrency: -1},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	if cfg.Sync.Type != "listings" {
		t.Errorf("expected default sync type listings, got %s", cfg.Sync.Type)
	}
	if cfg.Sync.BatchSize != 10 {
		t.Errorf("expected default batch_size 10, got %d", cfg.Sync.BatchSize)
	}
	if cfg.Sync.Concurrency != 3 {
		t.Errorf("expected default concurrency 3, got %d", cfg.Sync.Concurrency)
	}
	if cfg.Sync.MaxRetries != 3 {
		t.Errorf("expected default max_retries 3, got %d", cfg.Sync.MaxRetries)
	}
	if cfg.Sync.InitialDelay != 2*time.Second {
		t.Errorf("expected default initial_delay 2s, got %s", cfg.Sync.InitialDelay)
	}
	if cfg.Sync.MaxDelay != time.Minute {
		t.Errorf("expected default max_delay 1m, got %s", cfg.Sync.MaxDelay)
	}
	if cfg.Google.ReadRange == "" {
		t.Errorf("expected default read range to be set")
	}
	if cfg.API.Auth.HeaderAPIKey != "x-api-key" {
		t.Errorf("expected default api key header, got %s", cfg.API.Auth.HeaderAPIKey)
	}
}
