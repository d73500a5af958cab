package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string           `toml:"environment"` // "development" or "production"
	Logging     LoggingConfig    `toml:"logging"`
	Storage     StorageConfig    `toml:"storage"`
	Scanner     ScannerConfig    `toml:"scanner"`
	Acquirer    AcquirerConfig   `toml:"acquirer"`
	Enrichment  EnrichmentConfig `toml:"enrichment"`
	Market      MarketConfig     `toml:"market"`
	Pipeline    PipelineConfig   `toml:"pipeline"`
	Scheduler   SchedulerConfig  `toml:"scheduler"`
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Format string   `toml:"format"` // "json" or "text"
	Output []string `toml:"output"` // "stdout", "file"
}

type StorageConfig struct {
	Badger  BadgerConfig  `toml:"badger"`
	Objects ObjectsConfig `toml:"objects"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// ObjectsConfig configures the blob store holding raw disclosure PDFs.
// Type "local" writes under Dir; "s3" and "r2" target S3-compatible
// services (r2 requires Endpoint).
type ObjectsConfig struct {
	Type           string `toml:"type" validate:"oneof=local s3 r2"`
	Dir            string `toml:"dir"` // local storage root
	Bucket         string `toml:"bucket"`
	Region         string `toml:"region"`
	Endpoint       string `toml:"endpoint"` // custom endpoint for R2 or S3-compatible services
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ScannerConfig configures the daily disclosures listing scan.
type ScannerConfig struct {
	ListingURL         string `toml:"listing_url" validate:"required,url"`
	UserAgent          string `toml:"user_agent"`
	RequestTimeout     string `toml:"request_timeout"`      // duration string, e.g. "30s"
	PriceSensitiveOnly bool   `toml:"price_sensitive_only"` // drop non-price-sensitive rows
}

// AcquirerConfig configures rendered PDF downloads.
type AcquirerConfig struct {
	MaxConcurrent  int    `toml:"max_concurrent" validate:"min=1"` // concurrent browser fetches
	FetchTimeout   string `toml:"fetch_timeout"`                   // per-document deadline, e.g. "45s"
	NavigationWait string `toml:"navigation_wait"`                 // settle time after navigation, e.g. "2s"
	Headless       bool   `toml:"headless"`
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	LLMProviderGemini LLMProvider = "gemini"
	LLMProviderClaude LLMProvider = "claude"
)

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	Temperature float32 `toml:"temperature"`
	Timeout     string  `toml:"timeout"` // duration string, e.g. "2m"
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	Temperature float32 `toml:"temperature"`
	Timeout     string  `toml:"timeout"`
}

// EnrichmentConfig configures LLM analysis of converted disclosures.
type EnrichmentConfig struct {
	Provider         LLMProvider  `toml:"provider" validate:"oneof=gemini claude"`
	MaxConcurrent    int          `toml:"max_concurrent" validate:"min=1"`
	MaxDocumentChars int          `toml:"max_document_chars"` // document text is truncated beyond this
	MaxRetries       int          `toml:"max_retries"`        // retries on rate limit errors
	InitialBackoff   string       `toml:"initial_backoff"`    // duration string
	MaxBackoff       string       `toml:"max_backoff"`
	Gemini           GeminiConfig `toml:"gemini"`
	Claude           ClaudeConfig `toml:"claude"`
}

// MarketConfig configures the market data provider.
type MarketConfig struct {
	Provider       string `toml:"provider" validate:"oneof=eodhd"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	SymbolSuffix   string `toml:"symbol_suffix"` // appended to issuer codes, e.g. ".AU"
	RateLimit      string `toml:"rate_limit"`    // minimum spacing between requests
	RequestTimeout string `toml:"request_timeout"`
	RetryAttempts  int    `toml:"retry_attempts" validate:"min=1"`
	RetryDelay     string `toml:"retry_delay"`
}

// PipelineConfig configures batch processing.
type PipelineConfig struct {
	MaxConcurrentDocuments int `toml:"max_concurrent_documents" validate:"min=1"`
}

// SchedulerMode selects how scheduled runs are triggered.
type SchedulerMode string

const (
	// SchedulerModeInterval fires every Interval.
	SchedulerModeInterval SchedulerMode = "interval"
	// SchedulerModeTradingHours fires every Interval but only inside the
	// exchange trading window (Mon-Fri, WindowOpenHour-WindowCloseHour
	// in Timezone).
	SchedulerModeTradingHours SchedulerMode = "trading_hours"
	// SchedulerModeCron fires per CronExpr.
	SchedulerModeCron SchedulerMode = "cron"
)

// SchedulerConfig configures periodic pipeline runs.
type SchedulerConfig struct {
	Enabled         bool          `toml:"enabled"`
	Mode            SchedulerMode `toml:"mode" validate:"oneof=interval trading_hours cron"`
	Interval        string        `toml:"interval"` // duration string for interval and trading_hours modes
	CronExpr        string        `toml:"cron_expr"`
	Timezone        string        `toml:"timezone"`
	WindowOpenHour  int           `toml:"window_open_hour" validate:"min=0,max=23"`
	WindowCloseHour int           `toml:"window_close_hour" validate:"min=0,max=24"`
	RunHistory      int           `toml:"run_history"` // number of recent run records retained
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in praeco.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
			Objects: ObjectsConfig{
				Type:   "local",
				Dir:    "./data/documents",
				Region: "auto",
			},
		},
		Scanner: ScannerConfig{
			ListingURL:     "https://www.asx.com.au/asx/v2/statistics/todayAnns.do",
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			RequestTimeout: "30s",
		},
		Acquirer: AcquirerConfig{
			MaxConcurrent:  3,
			FetchTimeout:   "45s",
			NavigationWait: "2s",
			Headless:       true,
		},
		Enrichment: EnrichmentConfig{
			Provider:         LLMProviderGemini,
			MaxConcurrent:    2,
			MaxDocumentChars: 12000,
			MaxRetries:       5,
			InitialBackoff:   "45s",
			MaxBackoff:       "90s",
			Gemini: GeminiConfig{
				Model:       "gemini-2.5-flash",
				Temperature: 0.3,
				Timeout:     "2m",
			},
			Claude: ClaudeConfig{
				Model:       "claude-haiku-3-5-20241022",
				MaxTokens:   2048,
				Temperature: 0.3,
				Timeout:     "2m",
			},
		},
		Market: MarketConfig{
			Provider:       "eodhd",
			BaseURL:        "https://eodhd.com/api",
			SymbolSuffix:   ".AU",
			RateLimit:      "1s",
			RequestTimeout: "30s",
			RetryAttempts:  3,
			RetryDelay:     "5s",
		},
		Pipeline: PipelineConfig{
			MaxConcurrentDocuments: 4,
		},
		Scheduler: SchedulerConfig{
			Enabled:         true,
			Mode:            SchedulerModeTradingHours,
			Interval:        "10m",
			CronExpr:        "*/10 * * * *",
			Timezone:        "Australia/Sydney",
			WindowOpenHour:  10,
			WindowCloseHour: 16,
			RunHistory:      50,
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env. Later files override earlier
// files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("PRAECO_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Logging configuration
	if level := os.Getenv("PRAECO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("PRAECO_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("PRAECO_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Storage configuration
	if badgerPath := os.Getenv("PRAECO_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if objectsType := os.Getenv("PRAECO_OBJECTS_TYPE"); objectsType != "" {
		config.Storage.Objects.Type = objectsType
	}
	if objectsDir := os.Getenv("PRAECO_OBJECTS_DIR"); objectsDir != "" {
		config.Storage.Objects.Dir = objectsDir
	}
	if bucket := os.Getenv("PRAECO_OBJECTS_BUCKET"); bucket != "" {
		config.Storage.Objects.Bucket = bucket
	}
	if endpoint := os.Getenv("PRAECO_OBJECTS_ENDPOINT"); endpoint != "" {
		config.Storage.Objects.Endpoint = endpoint
	}
	if accessKey := os.Getenv("PRAECO_OBJECTS_ACCESS_KEY"); accessKey != "" {
		config.Storage.Objects.AccessKey = accessKey
	}
	if secretKey := os.Getenv("PRAECO_OBJECTS_SECRET_KEY"); secretKey != "" {
		config.Storage.Objects.SecretKey = secretKey
	}

	// Scanner configuration
	if listingURL := os.Getenv("PRAECO_SCANNER_LISTING_URL"); listingURL != "" {
		config.Scanner.ListingURL = listingURL
	}
	if userAgent := os.Getenv("PRAECO_SCANNER_USER_AGENT"); userAgent != "" {
		config.Scanner.UserAgent = userAgent
	}
	if sensitiveOnly := os.Getenv("PRAECO_SCANNER_PRICE_SENSITIVE_ONLY"); sensitiveOnly != "" {
		if so, err := strconv.ParseBool(sensitiveOnly); err == nil {
			config.Scanner.PriceSensitiveOnly = so
		}
	}

	// Acquirer configuration
	if maxConcurrent := os.Getenv("PRAECO_ACQUIRER_MAX_CONCURRENT"); maxConcurrent != "" {
		if mc, err := strconv.Atoi(maxConcurrent); err == nil {
			config.Acquirer.MaxConcurrent = mc
		}
	}
	if fetchTimeout := os.Getenv("PRAECO_ACQUIRER_FETCH_TIMEOUT"); fetchTimeout != "" {
		if _, err := time.ParseDuration(fetchTimeout); err == nil {
			config.Acquirer.FetchTimeout = fetchTimeout
		}
	}

	// Enrichment configuration
	if provider := os.Getenv("PRAECO_ENRICHMENT_PROVIDER"); provider != "" {
		config.Enrichment.Provider = LLMProvider(provider)
	}
	if apiKey := os.Getenv("PRAECO_GEMINI_API_KEY"); apiKey != "" {
		config.Enrichment.Gemini.APIKey = apiKey
	} else if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		config.Enrichment.Gemini.APIKey = apiKey
	}
	if model := os.Getenv("PRAECO_GEMINI_MODEL"); model != "" {
		config.Enrichment.Gemini.Model = model
	}
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.Enrichment.Claude.APIKey = apiKey
	}
	if apiKey := os.Getenv("PRAECO_CLAUDE_API_KEY"); apiKey != "" {
		config.Enrichment.Claude.APIKey = apiKey // PRAECO_ prefix takes priority
	}
	if model := os.Getenv("PRAECO_CLAUDE_MODEL"); model != "" {
		config.Enrichment.Claude.Model = model
	}

	// Market configuration
	if apiKey := os.Getenv("PRAECO_MARKET_API_KEY"); apiKey != "" {
		config.Market.APIKey = apiKey
	}
	if baseURL := os.Getenv("PRAECO_MARKET_BASE_URL"); baseURL != "" {
		config.Market.BaseURL = baseURL
	}

	// Scheduler configuration
	if enabled := os.Getenv("PRAECO_SCHEDULER_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Scheduler.Enabled = e
		}
	}
	if mode := os.Getenv("PRAECO_SCHEDULER_MODE"); mode != "" {
		config.Scheduler.Mode = SchedulerMode(mode)
	}
	if interval := os.Getenv("PRAECO_SCHEDULER_INTERVAL"); interval != "" {
		if _, err := time.ParseDuration(interval); err == nil {
			config.Scheduler.Interval = interval
		}
	}
	if cronExpr := os.Getenv("PRAECO_SCHEDULER_CRON"); cronExpr != "" {
		config.Scheduler.CronExpr = cronExpr
	}
}

// Validate checks structural constraints and cross-field requirements.
// Configuration errors are fatal at startup.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	switch c.Enrichment.Provider {
	case LLMProviderGemini:
		if c.Enrichment.Gemini.APIKey == "" {
			return fmt.Errorf("enrichment provider is gemini but no API key is configured (set PRAECO_GEMINI_API_KEY)")
		}
	case LLMProviderClaude:
		if c.Enrichment.Claude.APIKey == "" {
			return fmt.Errorf("enrichment provider is claude but no API key is configured (set ANTHROPIC_API_KEY)")
		}
	}

	switch c.Storage.Objects.Type {
	case "s3", "r2":
		if c.Storage.Objects.Bucket == "" {
			return fmt.Errorf("object storage type %q requires a bucket", c.Storage.Objects.Type)
		}
		if c.Storage.Objects.Type == "r2" && c.Storage.Objects.Endpoint == "" {
			return fmt.Errorf("object storage type r2 requires an endpoint")
		}
	}

	if c.Scheduler.Mode == SchedulerModeCron {
		if err := ValidateSchedule(c.Scheduler.CronExpr); err != nil {
			return fmt.Errorf("invalid scheduler cron expression: %w", err)
		}
	}
	if c.Scheduler.Mode == SchedulerModeInterval || c.Scheduler.Mode == SchedulerModeTradingHours {
		if _, err := time.ParseDuration(c.Scheduler.Interval); err != nil {
			return fmt.Errorf("invalid scheduler interval %q: %w", c.Scheduler.Interval, err)
		}
	}
	if c.Scheduler.WindowCloseHour <= c.Scheduler.WindowOpenHour {
		return fmt.Errorf("scheduler window close hour (%d) must be after open hour (%d)",
			c.Scheduler.WindowCloseHour, c.Scheduler.WindowOpenHour)
	}
	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("invalid scheduler timezone %q: %w", c.Scheduler.Timezone, err)
	}

	return nil
}

// ValidateSchedule validates a standard 5-field cron expression.
func ValidateSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

// Duration parses a duration string from config, falling back to def
// when the value is empty or malformed.
func Duration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
