package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	RemoteConfigURL    string `yaml:"remote_config_url"`
	StaticDataURL      string `yaml:"static_data_url"`
	DefenseExpiryURL   string `yaml:"defense_expiry_url"`
	MajorOrderURL      string `yaml:"major_order_url"`
	HistoryListURL     string `yaml:"history_list_url"`
	GitHubAPIKey       string `yaml:"-"`
	SuperClient        string `yaml:"super_client"`
	ApplicationContact string `yaml:"application_contact"`
	Locale             string `yaml:"locale"`

	FastInterval       time.Duration `yaml:"fast_interval"`
	SlowInterval       time.Duration `yaml:"slow_interval"`
	BackoffMargin      time.Duration `yaml:"backoff_margin"`
	DefaultRetryAfter  time.Duration `yaml:"default_retry_after"`
	CycleTimeout       time.Duration `yaml:"cycle_timeout"`
	HistoryConcurrency int           `yaml:"history_concurrency"`
	RequestRate        float64       `yaml:"request_rate"`
	RequestBurst       int           `yaml:"request_burst"`

	Port           string   `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	DatabaseURL    string   `yaml:"-"`

	LogLevel        string  `yaml:"log_level"`
	LogFormat       string  `yaml:"log_format"`
	MetricsEnabled  bool    `yaml:"metrics_enabled"`
	TracingEnabled  bool    `yaml:"tracing_enabled"`
	TracingExporter string  `yaml:"tracing_exporter"`
	OTLPEndpoint    string  `yaml:"otlp_endpoint"`
	TraceSampleRate float64 `yaml:"trace_sample_rate"`
}

const (
	defaultRemoteConfigURL  = "https://raw.githubusercontent.com/devwaseem/helldivers2-cache/main/config.json"
	defaultStaticDataURL    = "https://raw.githubusercontent.com/helldivers-2/json/master/"
	defaultDefenseExpiryURL = "https://raw.githubusercontent.com/devwaseem/helldivers2-cache/main/defense_expiry.json"
	defaultMajorOrderURL    = "https://api.live.prod.thehelldiversgame.com/api/v2/Assignment/War/"
	defaultHistoryListURL   = "https://api.github.com/repos/devwaseem/helldivers2-cache/contents/history"

	maxHistoryConcurrency = 16
)

// Defaults returns the configuration used when neither a file nor env vars say otherwise.
func Defaults() *Config {
	return &Config{
		RemoteConfigURL:    defaultRemoteConfigURL,
		StaticDataURL:      defaultStaticDataURL,
		DefenseExpiryURL:   defaultDefenseExpiryURL,
		MajorOrderURL:      defaultMajorOrderURL,
		HistoryListURL:     defaultHistoryListURL,
		SuperClient:        "warmonitor",
		ApplicationContact: "warmonitor@example.com",
		Locale:             "en-US",
		FastInterval:       45 * time.Second,
		SlowInterval:       180 * time.Second,
		BackoffMargin:      15 * time.Second,
		DefaultRetryAfter:  60 * time.Second,
		CycleTimeout:       60 * time.Second,
		HistoryConcurrency: 8,
		RequestRate:        10,
		RequestBurst:       20,
		Port:               "8080",
		AllowedOrigins:     []string{"http://localhost:3000"},
		LogLevel:           "info",
		LogFormat:          "text",
		MetricsEnabled:     true,
		TracingExporter:    "stdout",
		TraceSampleRate:    1,
	}
}

// Load builds the config from an optional YAML file (WARMONITOR_CONFIG) and
// then applies environment overrides on top.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("WARMONITOR_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.RemoteConfigURL = env("REMOTE_CONFIG_URL", cfg.RemoteConfigURL)
	cfg.StaticDataURL = env("STATIC_DATA_URL", cfg.StaticDataURL)
	cfg.DefenseExpiryURL = env("DEFENSE_EXPIRY_URL", cfg.DefenseExpiryURL)
	cfg.MajorOrderURL = env("MAJOR_ORDER_URL", cfg.MajorOrderURL)
	cfg.HistoryListURL = env("HISTORY_LIST_URL", cfg.HistoryListURL)
	cfg.GitHubAPIKey = os.Getenv("GITHUB_API_KEY")
	cfg.SuperClient = env("SUPER_CLIENT", cfg.SuperClient)
	cfg.ApplicationContact = env("APPLICATION_CONTACT", cfg.ApplicationContact)
	cfg.Locale = env("LOCALE", cfg.Locale)

	cfg.FastInterval = envDuration("FAST_INTERVAL", cfg.FastInterval)
	cfg.SlowInterval = envDuration("SLOW_INTERVAL", cfg.SlowInterval)
	cfg.BackoffMargin = envDuration("BACKOFF_MARGIN", cfg.BackoffMargin)
	cfg.DefaultRetryAfter = envDuration("DEFAULT_RETRY_AFTER", cfg.DefaultRetryAfter)
	cfg.CycleTimeout = envDuration("CYCLE_TIMEOUT", cfg.CycleTimeout)
	cfg.HistoryConcurrency = envInt("HISTORY_CONCURRENCY", cfg.HistoryConcurrency)
	cfg.RequestRate = envFloat("REQUEST_RATE", cfg.RequestRate)
	cfg.RequestBurst = envInt("REQUEST_BURST", cfg.RequestBurst)

	cfg.Port = env("PORT", cfg.Port)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = strings.Split(origins, ",")
	}
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	cfg.LogLevel = env("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = env("LOG_FORMAT", cfg.LogFormat)
	cfg.MetricsEnabled = envBool("METRICS_ENABLED", cfg.MetricsEnabled)
	cfg.TracingEnabled = envBool("TRACING_ENABLED", cfg.TracingEnabled)
	cfg.TracingExporter = strings.ToLower(env("TRACING_EXPORTER", cfg.TracingExporter))
	cfg.OTLPEndpoint = env("OTLP_ENDPOINT", cfg.OTLPEndpoint)
	cfg.TraceSampleRate = envFloat("TRACE_SAMPLE_RATE", cfg.TraceSampleRate)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.RemoteConfigURL == "" {
		return fmt.Errorf("REMOTE_CONFIG_URL is required")
	}
	if c.FastInterval <= 0 || c.SlowInterval <= 0 {
		return fmt.Errorf("poll intervals must be positive (fast=%s slow=%s)", c.FastInterval, c.SlowInterval)
	}
	if c.HistoryConcurrency < 1 {
		c.HistoryConcurrency = 1
	}
	if c.HistoryConcurrency > maxHistoryConcurrency {
		c.HistoryConcurrency = maxHistoryConcurrency
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"http://localhost:3000"}
	}
	if c.TraceSampleRate < 0 || c.TraceSampleRate > 1 {
		c.TraceSampleRate = 1
	}
	return nil
}

func env(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// envDuration accepts Go duration strings ("45s") or a bare number of seconds.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}
