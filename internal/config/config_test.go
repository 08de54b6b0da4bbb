package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_WithDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"TiingoBaseURL", cfg.TiingoBaseURL, "https://api.tiingo.com"},
		{"DataDir", cfg.DataDir, "data/price/daily_stock_price"},
		{"DBPath", cfg.DBPath, "data/price/price.db"},
		{"StartDate", cfg.StartDate, "2000-01-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.expected)
			}
		})
	}

	if cfg.MaxConcurrent != 10 {
		t.Errorf("MaxConcurrent = %d, want 10", cfg.MaxConcurrent)
	}
	if cfg.RequestsPerSec != 4.0 {
		t.Errorf("RequestsPerSec = %v, want 4.0", cfg.RequestsPerSec)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TIINGO_API_KEY", "test_key")
	t.Setenv("TIINGO_BASE_URL", "http://localhost:9999")
	t.Setenv("PRICESTORE_DATA_DIR", "/tmp/partitions")
	t.Setenv("PRICESTORE_MAX_CONCURRENT", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	if cfg.TiingoAPIKey != "test_key" {
		t.Errorf("TiingoAPIKey = %q, want %q", cfg.TiingoAPIKey, "test_key")
	}
	if cfg.TiingoBaseURL != "http://localhost:9999" {
		t.Errorf("TiingoBaseURL = %q, want %q", cfg.TiingoBaseURL, "http://localhost:9999")
	}
	if cfg.DataDir != "/tmp/partitions" {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, "/tmp/partitions")
	}
	if cfg.MaxConcurrent != 3 {
		t.Errorf("MaxConcurrent = %d, want 3", cfg.MaxConcurrent)
	}
}

func TestLoad_InvalidConcurrency(t *testing.T) {
	t.Setenv("PRICESTORE_MAX_CONCURRENT", "0")

	if _, err := Load(); err == nil {
		t.Error("Load() expected error for zero max_concurrent, got nil")
	}
}

func TestAPIKey_FromEnv(t *testing.T) {
	t.Setenv("TIINGO_API_KEY", "  env_key \n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	key, err := cfg.APIKey()
	if err != nil {
		t.Fatalf("APIKey() returned unexpected error: %v", err)
	}
	if key != "env_key" {
		t.Errorf("APIKey() = %q, want %q", key, "env_key")
	}
}

func TestAPIKey_FromCredentialsFile(t *testing.T) {
	dir := t.TempDir()
	credPath := filepath.Join(dir, "credentials.txt")
	if err := os.WriteFile(credPath, []byte("file_key\n"), 0o600); err != nil {
		t.Fatalf("failed to write credentials file: %v", err)
	}

	cfg := &Config{CredentialsFile: credPath}

	key, err := cfg.APIKey()
	if err != nil {
		t.Fatalf("APIKey() returned unexpected error: %v", err)
	}
	if key != "file_key" {
		t.Errorf("APIKey() = %q, want %q", key, "file_key")
	}
}

func TestAPIKey_Missing(t *testing.T) {
	cfg := &Config{CredentialsFile: filepath.Join(t.TempDir(), "absent.txt")}

	if _, err := cfg.APIKey(); err == nil {
		t.Error("APIKey() expected error when no key is available, got nil")
	}
}
