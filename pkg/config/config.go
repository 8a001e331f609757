package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	ServerPort  string `mapstructure:"SERVER_PORT"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	LogFormat   string `mapstructure:"LOG_FORMAT"`
	CORSOrigins string `mapstructure:"CORS_ORIGINS"`

	// SourcesFile overrides the embedded source catalog when set.
	SourcesFile  string `mapstructure:"SOURCES_FILE"`
	DefaultLimit int    `mapstructure:"DEFAULT_LIMIT"`

	APIWorkers  int           `mapstructure:"API_WORKERS"`
	APITimeout  time.Duration `mapstructure:"API_TIMEOUT"`
	TaskTimeout time.Duration `mapstructure:"TASK_TIMEOUT"`

	BrowserDriver      string        `mapstructure:"BROWSER_DRIVER"`
	BrowserNavTimeout  time.Duration `mapstructure:"BROWSER_NAV_TIMEOUT"`
	BrowserWaitTimeout time.Duration `mapstructure:"BROWSER_WAIT_TIMEOUT"`
	BrowserTaskTimeout time.Duration `mapstructure:"BROWSER_TASK_TIMEOUT"`

	HistoryDriver string `mapstructure:"HISTORY_DRIVER"`
	PostgresURL   string `mapstructure:"POSTGRES_URL"`
	SQLitePath    string `mapstructure:"SQLITE_PATH"`

	RedisAddr      string `mapstructure:"REDIS_ADDR"`
	RedisPassword  string `mapstructure:"REDIS_PASSWORD"`
	RedisDB        int    `mapstructure:"REDIS_DB"`
	FailureLogSize int    `mapstructure:"FAILURE_LOG_SIZE"`
}

var defaults = map[string]any{
	"SERVER_PORT":          "8080",
	"LOG_LEVEL":            "info",
	"LOG_FORMAT":           "json",
	"CORS_ORIGINS":         "*",
	"SOURCES_FILE":         "",
	"DEFAULT_LIMIT":        10,
	"API_WORKERS":          4,
	"API_TIMEOUT":          "10s",
	"TASK_TIMEOUT":         "30s",
	"BROWSER_DRIVER":       "chromedp",
	"BROWSER_NAV_TIMEOUT":  "30s",
	"BROWSER_WAIT_TIMEOUT": "15s",
	"BROWSER_TASK_TIMEOUT": "90s",
	"HISTORY_DRIVER":       "none",
	"POSTGRES_URL":         "",
	"SQLITE_PATH":          "prices.db",
	"REDIS_ADDR":           "",
	"REDIS_PASSWORD":       "",
	"REDIS_DB":             0,
	"FAILURE_LOG_SIZE":     50,
}

// Load reads configuration from an optional .env file and the environment.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit env file path. A missing file is not an error,
// so configuration can come purely from the environment in production.
func LoadFile(envFile string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			v.SetConfigFile(envFile)
			v.SetConfigType("env")
			if err := v.ReadInConfig(); err != nil {
				return nil, eris.Wrapf(err, "config: read %s", envFile)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	cfg.BrowserDriver = strings.ToLower(cfg.BrowserDriver)
	cfg.HistoryDriver = strings.ToLower(cfg.HistoryDriver)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the search core cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.APIWorkers < 1 {
		errs = append(errs, errors.New("API_WORKERS must be at least 1"))
	}
	if c.APITimeout <= 0 || c.TaskTimeout <= 0 {
		errs = append(errs, errors.New("API_TIMEOUT and TASK_TIMEOUT must be positive"))
	}
	if c.BrowserNavTimeout <= 0 || c.BrowserWaitTimeout <= 0 || c.BrowserTaskTimeout <= 0 {
		errs = append(errs, errors.New("browser timeouts must be positive"))
	}
	switch c.BrowserDriver {
	case "chromedp", "rod":
	default:
		errs = append(errs, eris.Errorf("unsupported BROWSER_DRIVER %q", c.BrowserDriver))
	}
	switch c.HistoryDriver {
	case "none", "":
	case "postgres":
		if c.PostgresURL == "" {
			errs = append(errs, errors.New("POSTGRES_URL is required when HISTORY_DRIVER=postgres"))
		}
	case "sqlite":
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required when HISTORY_DRIVER=sqlite"))
		}
	default:
		errs = append(errs, eris.Errorf("unsupported HISTORY_DRIVER %q", c.HistoryDriver))
	}
	if c.DefaultLimit < 1 {
		errs = append(errs, errors.New("DEFAULT_LIMIT must be at least 1"))
	}
	if len(errs) > 0 {
		return eris.Wrap(errors.Join(errs...), "config: invalid")
	}
	return nil
}
