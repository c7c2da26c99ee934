package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	// HTTP Server
	Port               string        `env:"PORT" env-default:"8081" yaml:"port"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"30s" yaml:"shutdownTimeout"`
	RateLimitPerMinute int           `env:"RATE_LIMIT_PER_MINUTE" env-default:"60" yaml:"rateLimitPerMinute"`

	// Logging
	LogFormat string `env:"LOG_FORMAT" env-default:"text" yaml:"logFormat"`
	LogLevel  string `env:"LOG_LEVEL" env-default:"info" yaml:"logLevel"`

	// Backend selection
	DataBackend  string `env:"DATA_BACKEND" env-default:"sqlite" yaml:"dataBackend"`
	SQLiteDBPath string `env:"SQLITE_DB_PATH" env-default:"./data/retireplan.db" yaml:"sqliteDBPath"`

	// AMQP
	AMQPURL      string `env:"AMQP_URL" yaml:"amqpURL"`
	AMQPExchange string `env:"AMQP_EXCHANGE" env-default:"retireplan" yaml:"amqpExchange"`
	AMQPQueue    string `env:"AMQP_QUEUE" env-default:"report_requests" yaml:"amqpQueue"`

	// Google Sheets projection export
	GoogleSpreadsheetID      string `env:"GOOGLE_SPREADSHEET_ID" yaml:"googleSpreadsheetID"`
	GoogleServiceAccountFile string `env:"GOOGLE_SERVICE_ACCOUNT_FILE" yaml:"googleServiceAccountFile"`
	GoogleServiceAccountJSON string `env:"GOOGLE_SERVICE_ACCOUNT_JSON" yaml:"-"`

	// Market data
	RatesAPIURL           string        `env:"RATES_API_URL" env-default:"https://open.er-api.com/v6" yaml:"ratesAPIURL"`
	QuotesAPIURL          string        `env:"QUOTES_API_URL" env-default:"https://query1.finance.yahoo.com" yaml:"quotesAPIURL"`
	MarketTimeout         time.Duration `env:"MARKET_TIMEOUT" env-default:"3s" yaml:"marketTimeout"`
	MarketCacheTTL        time.Duration `env:"MARKET_CACHE_TTL" env-default:"1h" yaml:"marketCacheTTL"`
	MarketRefreshInterval time.Duration `env:"MARKET_REFRESH_INTERVAL" env-default:"6h" yaml:"marketRefreshInterval"`
	MarketCurrencies      []string      `env:"MARKET_CURRENCIES" env-default:"USD,EUR,GBP" env-separator:"," yaml:"marketCurrencies"`
	MarketSymbols         []string      `env:"MARKET_SYMBOLS" env-default:"AAPL,MSFT,GOOGL,NVDA" env-separator:"," yaml:"marketSymbols"`

	// Report worker
	ReportPollInterval time.Duration `env:"REPORT_POLL_INTERVAL" env-default:"10s" yaml:"reportPollInterval"`
	ReportMaxRetries   int           `env:"REPORT_MAX_RETRIES" env-default:"3" yaml:"reportMaxRetries"`
	ReportBatchSize    int           `env:"REPORT_BATCH_SIZE" env-default:"5" yaml:"reportBatchSize"`
}

var (
	validBackends   = []string{"memory", "sqlite"}
	validLogFormats = []string{"text", "json", "zap"}
	symbolPattern   = regexp.MustCompile(`^[A-Z0-9.\-]{1,10}$`)
)

// LoadEnvFile loads a .env file when present. Missing files are not an error.
func LoadEnvFile(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("could not read config: %w", err)
	}
	cfg.normalize()
	return &cfg, nil
}

// LoadFile reads a yaml config file and overlays the environment on it.
func LoadFile(path string) (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("could not read config: %w", err)
	}
	cfg.normalize()
	return &cfg, nil
}

func (c *Config) normalize() {
	c.DataBackend = strings.ToLower(strings.TrimSpace(c.DataBackend))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	for i, cur := range c.MarketCurrencies {
		c.MarketCurrencies[i] = strings.ToUpper(strings.TrimSpace(cur))
	}
	for i, sym := range c.MarketSymbols {
		c.MarketSymbols[i] = strings.ToUpper(strings.TrimSpace(sym))
	}
}

// AMQPEnabled reports whether report jobs go through the broker.
func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}

// SheetsEnabled reports whether projections are exported to Google Sheets.
func (c *Config) SheetsEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if !slices.Contains(validLogFormats, c.LogFormat) {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be one of %v", c.LogFormat, validLogFormats))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0o755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.GoogleSpreadsheetID != "" {
		hasFile := c.GoogleServiceAccountFile != ""
		hasJSON := c.GoogleServiceAccountJSON != ""
		if !hasFile && !hasJSON {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_SERVICE_ACCOUNT_JSON must be provided for sheets export")
		}
		if hasFile {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	for _, raw := range []struct{ name, value string }{
		{"RATES_API_URL", c.RatesAPIURL},
		{"QUOTES_API_URL", c.QuotesAPIURL},
	} {
		if u, err := url.Parse(raw.value); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errors = append(errors, fmt.Sprintf("invalid %s '%s': must be an http(s) URL", raw.name, raw.value))
		}
	}

	if c.MarketTimeout <= 0 || c.MarketTimeout > time.Minute {
		errors = append(errors, fmt.Sprintf("invalid market timeout %v: must be between 0 and 1 minute", c.MarketTimeout))
	}
	if c.MarketCacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid market cache TTL %v: must be at least 1 second", c.MarketCacheTTL))
	}
	if c.MarketRefreshInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid market refresh interval %v: must be at least 1 minute", c.MarketRefreshInterval))
	}
	for _, cur := range c.MarketCurrencies {
		if len(cur) != 3 {
			errors = append(errors, fmt.Sprintf("invalid currency code '%s'", cur))
		}
	}
	for _, sym := range c.MarketSymbols {
		if !symbolPattern.MatchString(sym) {
			errors = append(errors, fmt.Sprintf("invalid stock symbol '%s'", sym))
		}
	}

	if c.ReportPollInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid report poll interval %v: must be at least 1 second", c.ReportPollInterval))
	}
	if c.ReportMaxRetries < 1 || c.ReportMaxRetries > 10 {
		errors = append(errors, fmt.Sprintf("invalid report max retries %d: must be between 1 and 10", c.ReportMaxRetries))
	}
	if c.ReportBatchSize < 1 || c.ReportBatchSize > 100 {
		errors = append(errors, fmt.Sprintf("invalid report batch size %d: must be between 1 and 100", c.ReportBatchSize))
	}
	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1", c.RateLimitPerMinute))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}
