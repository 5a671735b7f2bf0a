package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigFile      = "config.yaml"
	DefaultEnvFile         = ".env"
	DefaultAPIBase         = "https://api.twitter.com"
	DefaultWebDomain       = "twitter.com"
	DefaultMaxResults      = 100
	DefaultMaxContent      = 2000
	DefaultBackend         = "sqlite"
	DefaultStoragePath     = ".postmirror/postmirror.db"
	DefaultPebblePath      = ".postmirror/cursor"
	DefaultRetainDays      = 30
	DefaultKeyPrefix       = "postmirror:"
	DefaultAddr            = ":8080"
	DefaultShutdownTimeout = 30 * time.Second
	DefaultCron            = "*/5 * * * *"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "json"

	DefaultBearerTokenEnv = "TWITTER_BEARER_AUTH"
	DefaultAccountIDEnv   = "TWITTER_ACCOUNT_ID"
	DefaultWebhookURLEnv  = "DISCORD_WEBHOOK_URL"
	DefaultSentryDSNEnv   = "SENTRY_DSN"
)

// Duration wraps time.Duration for YAML unmarshaling from strings like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

type Config struct {
	Source    SourceConfig    `yaml:"source"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Storage   StorageConfig   `yaml:"storage"`
	Server    ServerConfig    `yaml:"server"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`
	Privacy   PrivacyConfig   `yaml:"privacy"`
}

type SourceConfig struct {
	AccountID      string `yaml:"account_id"`
	AccountIDEnv   string `yaml:"account_id_env"`
	BearerTokenEnv string `yaml:"bearer_token_env"`
	APIBase        string `yaml:"api_base"`
	WebDomain      string `yaml:"web_domain"`
	MaxResults     int    `yaml:"max_results"`

	// Resolved from env var at load time.
	BearerToken string `yaml:"-"`
}

type WebhookConfig struct {
	URLEnv     string `yaml:"url_env"`
	MaxContent int    `yaml:"max_content"`

	// Resolved from env var at load time.
	URL string `yaml:"-"`
}

type StorageConfig struct {
	Backend    string      `yaml:"backend"`
	Path       string      `yaml:"path"`
	RetainDays int         `yaml:"retain_days"`
	Redis      RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr        string `yaml:"addr"`
	PasswordEnv string `yaml:"password_env"`
	DB          int    `yaml:"db"`
	KeyPrefix   string `yaml:"key_prefix"`

	// Resolved from env var at load time.
	Password string `yaml:"-"`
}

type ServerConfig struct {
	Addr            string   `yaml:"addr"`
	MetricsAddr     string   `yaml:"metrics_addr"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

type ScheduleConfig struct {
	Disabled bool   `yaml:"disabled"`
	Cron     string `yaml:"cron"`
}

type TelemetryConfig struct {
	SentryDSNEnv string `yaml:"sentry_dsn_env"`
	Environment  string `yaml:"environment"`

	// Resolved from env var at load time.
	SentryDSN string `yaml:"-"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type PrivacyConfig struct {
	Redact RedactConfig `yaml:"redact"`
}

type RedactConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Patterns []string `yaml:"patterns"`
}

// Load reads .env files and config.yaml from dir, applies defaults, resolves
// env vars, and validates. A missing config.yaml is not an error: the
// defaults plus environment are a complete configuration.
func Load(dir string) (*Config, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("config dir is required")
	}

	if err := loadEnvFiles(filepath.Join(dir, DefaultEnvFile), DefaultEnvFile); err != nil {
		return nil, err
	}

	var cfg Config
	path := filepath.Join(dir, DefaultConfigFile)
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyDefaults(&cfg)
	resolveEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// loadEnvFiles loads each existing file. Variables already in the
// environment are never overwritten.
func loadEnvFiles(paths ...string) error {
	seen := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		if seen[abs] {
			continue
		}
		seen[abs] = true

		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Source.AccountIDEnv == "" {
		cfg.Source.AccountIDEnv = DefaultAccountIDEnv
	}
	if cfg.Source.BearerTokenEnv == "" {
		cfg.Source.BearerTokenEnv = DefaultBearerTokenEnv
	}
	if cfg.Source.APIBase == "" {
		cfg.Source.APIBase = DefaultAPIBase
	}
	if cfg.Source.WebDomain == "" {
		cfg.Source.WebDomain = DefaultWebDomain
	}
	if cfg.Source.MaxResults == 0 {
		cfg.Source.MaxResults = DefaultMaxResults
	}
	if cfg.Webhook.URLEnv == "" {
		cfg.Webhook.URLEnv = DefaultWebhookURLEnv
	}
	if cfg.Webhook.MaxContent == 0 {
		cfg.Webhook.MaxContent = DefaultMaxContent
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = DefaultBackend
	}
	cfg.Storage.Backend = strings.ToLower(cfg.Storage.Backend)
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = DefaultStoragePath
		if cfg.Storage.Backend == "pebble" {
			cfg.Storage.Path = DefaultPebblePath
		}
	}
	if cfg.Storage.RetainDays == 0 {
		cfg.Storage.RetainDays = DefaultRetainDays
	}
	if cfg.Storage.Redis.KeyPrefix == "" {
		cfg.Storage.Redis.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultAddr
	}
	if cfg.Server.ShutdownTimeout.Duration == 0 {
		cfg.Server.ShutdownTimeout.Duration = DefaultShutdownTimeout
	}
	if cfg.Schedule.Cron == "" {
		cfg.Schedule.Cron = DefaultCron
	}
	if cfg.Telemetry.SentryDSNEnv == "" {
		cfg.Telemetry.SentryDSNEnv = DefaultSentryDSNEnv
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}

func resolveEnv(cfg *Config) {
	if cfg.Source.AccountID == "" {
		cfg.Source.AccountID = os.Getenv(cfg.Source.AccountIDEnv)
	}
	cfg.Source.BearerToken = os.Getenv(cfg.Source.BearerTokenEnv)
	cfg.Webhook.URL = os.Getenv(cfg.Webhook.URLEnv)
	cfg.Telemetry.SentryDSN = os.Getenv(cfg.Telemetry.SentryDSNEnv)
	if cfg.Storage.Redis.PasswordEnv != "" {
		cfg.Storage.Redis.Password = os.Getenv(cfg.Storage.Redis.PasswordEnv)
	}
}

func validate(cfg *Config) error {
	switch cfg.Storage.Backend {
	case "sqlite", "pebble":
	case "redis":
		if cfg.Storage.Redis.Addr == "" {
			return errors.New("storage.redis.addr: required for the redis backend")
		}
	default:
		return fmt.Errorf("storage.backend: unknown backend %q (want sqlite, redis or pebble)", cfg.Storage.Backend)
	}

	if cfg.Source.MaxResults < 5 || cfg.Source.MaxResults > 100 {
		return fmt.Errorf("source.max_results: %d out of range 5..100", cfg.Source.MaxResults)
	}
	if cfg.Webhook.MaxContent < 0 {
		return fmt.Errorf("webhook.max_content: must not be negative")
	}

	if !gronx.IsValid(cfg.Schedule.Cron) {
		return fmt.Errorf("schedule.cron: invalid expression %q", cfg.Schedule.Cron)
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(cfg.Log.Level)); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("log.format: unknown format %q (want json or console)", cfg.Log.Format)
	}

	return nil
}

// RequireCredentials reports which of the secrets needed to mirror are missing.
func (c *Config) RequireCredentials() error {
	var missing []string
	if c.Source.AccountID == "" {
		missing = append(missing, "source account id ($"+c.Source.AccountIDEnv+")")
	}
	if c.Source.BearerToken == "" {
		missing = append(missing, "bearer token ($"+c.Source.BearerTokenEnv+")")
	}
	if c.Webhook.URL == "" {
		missing = append(missing, "webhook url ($"+c.Webhook.URLEnv+")")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	return nil
}
