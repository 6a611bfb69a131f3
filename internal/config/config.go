/*
Package config loads filingscraper settings: defaults, then a TOML file, then
FILINGSCRAPER_* environment variables. Command-line flags are applied by the
caller last.
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"

	"github.com/shanehull/filingscraper/internal/retry"
	"github.com/shanehull/filingscraper/internal/stocks"
)

const envPrefix = "FILINGSCRAPER_"

type Config struct {
	Registry RegistryConfig `toml:"registry"`
	Download DownloadConfig `toml:"download"`
	Retry    RetryConfig    `toml:"retry"`
	Reports  ReportsConfig  `toml:"reports"`
	Stocks   StocksConfig   `toml:"stocks"`
	SEC      SECConfig      `toml:"sec"`
	Gemini   GeminiConfig   `toml:"gemini"`
	Email    EmailConfig    `toml:"email"`
	Notebook NotebookConfig `toml:"notebook"`
	Logging  LoggingConfig  `toml:"logging"`
}

type RegistryConfig struct {
	QueryURL  string  `toml:"query_url" validate:"required,url"`
	StaticURL string  `toml:"static_url" validate:"required,url"`
	PageSize  int     `toml:"page_size" validate:"min=1,max=100"`
	MaxPages  int     `toml:"max_pages" validate:"min=1"`
	RateLimit float64 `toml:"rate_limit" validate:"gte=0"` // queries per second, 0 = unlimited
	Timeout   string  `toml:"timeout" validate:"duration"`
}

type DownloadConfig struct {
	OutputDir string  `toml:"output_dir" validate:"required"`
	Workers   int     `toml:"workers" validate:"min=1,max=32"`
	MinDelay  string  `toml:"min_delay" validate:"duration"` // jitter after each download
	MaxDelay  string  `toml:"max_delay" validate:"duration"`
	HostRate  float64 `toml:"host_rate" validate:"gte=0"` // requests per second per host
	UserAgent string  `toml:"user_agent"`
	Timeout   string  `toml:"timeout" validate:"duration"`
}

type RetryConfig struct {
	MaxAttempts int    `toml:"max_attempts" validate:"min=1,max=10"`
	BaseDelay   string `toml:"base_delay" validate:"duration"`
	MaxDelay    string `toml:"max_delay" validate:"duration"`
}

type ReportsConfig struct {
	AnnualYears     int `toml:"annual_years" validate:"min=1,max=20"`
	RecentDays      int `toml:"recent_days" validate:"min=1"`
	RecentDownloads int `toml:"recent_downloads" validate:"gte=0"`
	DigestLimit     int `toml:"digest_limit" validate:"min=1"`
	USAnnual        int `toml:"us_annual" validate:"gte=0"`
	USQuarterly     int `toml:"us_quarterly" validate:"gte=0"`
}

type StocksConfig struct {
	Path        string `toml:"path"` // empty uses the built-in sample directory
	SZSEListURL string `toml:"szse_list_url" validate:"omitempty,url"`
	HKEListURL  string `toml:"hke_list_url" validate:"omitempty,url"`
}

type SECConfig struct {
	UserAgent      string `toml:"user_agent" validate:"required"` // SEC asks for "Name email"
	TickersURL     string `toml:"tickers_url" validate:"omitempty,url"`
	SubmissionsURL string `toml:"submissions_url" validate:"omitempty,url"`
	ArchivesURL    string `toml:"archives_url" validate:"omitempty,url"`
}

type GeminiConfig struct {
	APIKey string `toml:"api_key"`
	Model  string `toml:"model"`
}

type EmailConfig struct {
	SMTPServer string `toml:"smtp_server"`
	SMTPPort   int    `toml:"smtp_port" validate:"min=0,max=65535"`
	SMTPUser   string `toml:"smtp_user"`
	SMTPPass   string `toml:"smtp_pass"`
	FromEmail  string `toml:"from_email" validate:"omitempty,email"`
	ToEmail    string `toml:"to_email" validate:"omitempty,email"`
}

// Enabled reports whether enough is configured to send mail.
func (e EmailConfig) Enabled() bool {
	return e.SMTPServer != "" && e.SMTPUser != "" && e.SMTPPass != "" && e.ToEmail != ""
}

type NotebookConfig struct {
	Binary      string `toml:"binary"`
	PersonaFile string `toml:"persona_file"`
	Timeout     string `toml:"timeout" validate:"duration"`
}

type LoggingConfig struct {
	Level  string `toml:"level" validate:"oneof=debug info warn error"`
	Format string `toml:"format" validate:"oneof=json console"`
}

func NewDefaultConfig() *Config {
	return &Config{
		Registry: RegistryConfig{
			QueryURL:  "http://www.cninfo.com.cn/new/hisAnnouncement/query",
			StaticURL: "http://static.cninfo.com.cn",
			PageSize:  30,
			MaxPages:  100,
			RateLimit: 2,
			Timeout:   "30s",
		},
		Download: DownloadConfig{
			OutputDir: "reports",
			Workers:   5,
			MinDelay:  "100ms",
			MaxDelay:  "300ms",
			HostRate:  4,
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:110.0) Gecko/20100101 Firefox/110.0",
			Timeout:   "60s",
		},
		Retry: RetryConfig{
			MaxAttempts: retry.DefaultMaxAttempts,
			BaseDelay:   "2s",
			MaxDelay:    "10s",
		},
		Reports: ReportsConfig{
			AnnualYears:     5,
			RecentDays:      180,
			RecentDownloads: 5,
			DigestLimit:     15,
			USAnnual:        5,
			USQuarterly:     3,
		},
		Stocks: StocksConfig{
			SZSEListURL: stocks.DefaultSZSEListURL,
			HKEListURL:  stocks.DefaultHKEListURL,
		},
		SEC: SECConfig{
			UserAgent: "filingscraper research@example.com",
		},
		Gemini: GeminiConfig{
			Model: "gemini-2.5-flash",
		},
		Email: EmailConfig{
			SMTPServer: "smtp.gmail.com",
			SMTPPort:   587,
		},
		Notebook: NotebookConfig{
			Binary:  "notebooklm",
			Timeout: "120s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path yields defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := NewDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	str := func(name string, dst *string) {
		if v := os.Getenv(envPrefix + name); v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v := os.Getenv(envPrefix + name); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	float := func(name string, dst *float64) {
		if v := os.Getenv(envPrefix + name); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}

	str("REGISTRY_URL", &cfg.Registry.QueryURL)
	float("REGISTRY_RATE_LIMIT", &cfg.Registry.RateLimit)

	str("OUTPUT_DIR", &cfg.Download.OutputDir)
	num("WORKERS", &cfg.Download.Workers)
	float("HOST_RATE", &cfg.Download.HostRate)

	num("RETRY_MAX_ATTEMPTS", &cfg.Retry.MaxAttempts)

	str("STOCKS_PATH", &cfg.Stocks.Path)
	str("SEC_USER_AGENT", &cfg.SEC.UserAgent)

	// The bare GEMINI_API_KEY is what Google's tooling sets.
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.Gemini.APIKey = v
	}
	str("GEMINI_API_KEY", &cfg.Gemini.APIKey)
	str("GEMINI_MODEL", &cfg.Gemini.Model)

	str("SMTP_SERVER", &cfg.Email.SMTPServer)
	num("SMTP_PORT", &cfg.Email.SMTPPort)
	str("SMTP_USER", &cfg.Email.SMTPUser)
	str("SMTP_PASS", &cfg.Email.SMTPPass)
	str("FROM_EMAIL", &cfg.Email.FromEmail)
	str("TO_EMAIL", &cfg.Email.ToEmail)

	str("NOTEBOOK_BINARY", &cfg.Notebook.Binary)
	str("NOTEBOOK_PERSONA_FILE", &cfg.Notebook.PersonaFile)

	str("LOG_LEVEL", &cfg.Logging.Level)
	str("LOG_FORMAT", &cfg.Logging.Format)
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		_, err := time.ParseDuration(fl.Field().String())
		return err == nil
	}); err != nil {
		panic(fmt.Sprintf("config: failed to register duration validation: %v", err))
	}
	return v
}

// Validate checks field constraints and the relations between fields.
func (c *Config) Validate() error {
	if err := newValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s fails %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if Duration(c.Retry.MaxDelay) < Duration(c.Retry.BaseDelay) {
		return fmt.Errorf("invalid config: retry max_delay %s is shorter than base_delay %s", c.Retry.MaxDelay, c.Retry.BaseDelay)
	}
	if Duration(c.Download.MaxDelay) < Duration(c.Download.MinDelay) {
		return fmt.Errorf("invalid config: download max_delay %s is shorter than min_delay %s", c.Download.MaxDelay, c.Download.MinDelay)
	}
	return nil
}

// Duration parses a validated duration string; invalid input yields zero.
func Duration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

// RetryPolicy turns the retry section into a policy for transient network errors.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.Retry.MaxAttempts,
		BaseDelay:   Duration(c.Retry.BaseDelay),
		MaxDelay:    Duration(c.Retry.MaxDelay),
		Retryable:   retry.IsTransient,
	}
}
