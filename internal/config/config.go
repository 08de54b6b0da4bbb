package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for one pipeline run.
type Config struct {
	// Tiingo API access
	TiingoAPIKey  string `mapstructure:"tiingo_api_key"`
	TiingoBaseURL string `mapstructure:"tiingo_base_url"`

	// CredentialsFile is a fallback for the API key when the
	// environment variable is not set.
	CredentialsFile string `mapstructure:"credentials_file"`

	// Storage locations
	DataDir string `mapstructure:"data_dir"`
	DBPath  string `mapstructure:"db_path"`

	// Fetch window. StartDate defaults to the earliest history we care
	// about; EndDate empty means "through today".
	StartDate string `mapstructure:"start_date"`
	EndDate   string `mapstructure:"end_date"`

	// Concurrency and rate limiting
	MaxConcurrent  int     `mapstructure:"max_concurrent"`
	RequestsPerSec float64 `mapstructure:"requests_per_sec"`

	// DailyRefresh re-fetches partitions whose file is older than the
	// start of the current day, instead of skipping on bare existence.
	DailyRefresh bool `mapstructure:"daily_refresh"`

	// Universe sources: files (plain text or CSV with a Symbol column)
	// plus inline symbols appended to whatever the files yield.
	SymbolFiles []string `mapstructure:"symbol_files"`
	Symbols     []string `mapstructure:"symbols"`
}

// Load reads configuration from environment variables and an optional
// config file. Environment variables take precedence over config file
// values.
//
// Expected environment variables:
//   - TIINGO_API_KEY (or a credentials file, see APIKey)
//   - TIINGO_BASE_URL (optional, defaults to production)
//   - PRICESTORE_DATA_DIR (optional)
//   - PRICESTORE_DB_PATH (optional)
//   - PRICESTORE_CREDENTIALS_FILE (optional)
//   - PRICESTORE_START_DATE (optional)
//   - PRICESTORE_END_DATE (optional)
//   - PRICESTORE_MAX_CONCURRENT (optional)
//   - PRICESTORE_REQUESTS_PER_SEC (optional)
//   - PRICESTORE_DAILY_REFRESH (optional)
func Load() (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("") // No prefix, use full names
	v.AutomaticEnv()

	// Defaults mirror the layout of a standalone data directory.
	v.SetDefault("tiingo_base_url", "https://api.tiingo.com")
	v.SetDefault("data_dir", "data/price/daily_stock_price")
	v.SetDefault("db_path", "data/price/price.db")
	v.SetDefault("start_date", "2000-01-01")
	v.SetDefault("max_concurrent", 10)
	v.SetDefault("requests_per_sec", 4.0)
	v.SetDefault("credentials_file", "credentials.txt")

	// Optionally read from config file if it exists
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.pricestore")

	// Read config file (ignore if not found)
	_ = v.ReadInConfig()

	v.BindEnv("tiingo_api_key", "TIINGO_API_KEY")
	v.BindEnv("tiingo_base_url", "TIINGO_BASE_URL")
	v.BindEnv("data_dir", "PRICESTORE_DATA_DIR")
	v.BindEnv("db_path", "PRICESTORE_DB_PATH")
	v.BindEnv("credentials_file", "PRICESTORE_CREDENTIALS_FILE")
	v.BindEnv("start_date", "PRICESTORE_START_DATE")
	v.BindEnv("end_date", "PRICESTORE_END_DATE")
	v.BindEnv("max_concurrent", "PRICESTORE_MAX_CONCURRENT")
	v.BindEnv("requests_per_sec", "PRICESTORE_REQUESTS_PER_SEC")
	v.BindEnv("daily_refresh", "PRICESTORE_DAILY_REFRESH")

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.MaxConcurrent <= 0 {
		return nil, fmt.Errorf("max_concurrent must be positive, got %d", config.MaxConcurrent)
	}

	return config, nil
}

// APIKey returns the Tiingo API key, reading the credentials file as a
// fallback when the environment did not supply one. The key is not
// required at Load time: a load-only run never needs it, so the check
// happens only when a fetch is actually attempted.
func (c *Config) APIKey() (string, error) {
	if c.TiingoAPIKey != "" {
		return strings.TrimSpace(c.TiingoAPIKey), nil
	}

	if c.CredentialsFile != "" {
		data, err := os.ReadFile(c.CredentialsFile)
		if err == nil {
			key := strings.TrimSpace(string(data))
			if key != "" {
				return key, nil
			}
		}
	}

	return "", fmt.Errorf("API key not found: set TIINGO_API_KEY or create %s", c.CredentialsFile)
}
