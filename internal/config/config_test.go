package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTestYAML(t *testing.T, dir, filename, content string) string {
	t.Helper()
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write test yaml: %v", err)
	}
	return path
}

// clearEnv blanks the default credential variables so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{DefaultAccountIDEnv, DefaultBearerTokenEnv, DefaultWebhookURLEnv, DefaultSentryDSNEnv} {
		t.Setenv(name, "")
	}
}

// --- Load tests ---

func TestLoad_FullConfig(t *testing.T) {
	dir := t.TempDir()
	clearEnv(t)
	t.Setenv("TEST_BEARER", "bearer-secret")
	t.Setenv("TEST_HOOK", "https://discord.test/api/webhooks/1/abc")
	t.Setenv("TEST_DSN", "https://key@sentry.test/1")
	t.Setenv("TEST_REDIS_PW", "hunter2")

	writeTestYAML(t, dir, DefaultConfigFile, `
source:
  account_id: "42"
  bearer_token_env: TEST_BEARER
  api_base: https://api.example.test
  web_domain: x.com
  max_results: 50
webhook:
  url_env: TEST_HOOK
  max_content: 1500
storage:
  backend: Redis
  retain_days: 7
  redis:
    addr: localhost:6379
    password_env: TEST_REDIS_PW
    db: 2
    key_prefix: "mirror:"
server:
  addr: ":9000"
  metrics_addr: ":9100"
  shutdown_timeout: 5s
schedule:
  cron: "0 * * * *"
telemetry:
  sentry_dsn_env: TEST_DSN
  environment: staging
log:
  level: debug
  format: console
privacy:
  redact:
    enabled: true
    patterns:
      - "(?i)token"
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Source.AccountID != "42" {
		t.Errorf("account id = %q", cfg.Source.AccountID)
	}
	if cfg.Source.BearerToken != "bearer-secret" {
		t.Errorf("bearer token = %q", cfg.Source.BearerToken)
	}
	if cfg.Source.APIBase != "https://api.example.test" || cfg.Source.WebDomain != "x.com" {
		t.Errorf("source = %+v", cfg.Source)
	}
	if cfg.Source.MaxResults != 50 {
		t.Errorf("max results = %d", cfg.Source.MaxResults)
	}
	if cfg.Webhook.URL != "https://discord.test/api/webhooks/1/abc" || cfg.Webhook.MaxContent != 1500 {
		t.Errorf("webhook = %+v", cfg.Webhook)
	}
	if cfg.Storage.Backend != "redis" {
		t.Errorf("backend = %q, want lowercased redis", cfg.Storage.Backend)
	}
	if cfg.Storage.RetainDays != 7 {
		t.Errorf("retain days = %d", cfg.Storage.RetainDays)
	}
	r := cfg.Storage.Redis
	if r.Addr != "localhost:6379" || r.Password != "hunter2" || r.DB != 2 || r.KeyPrefix != "mirror:" {
		t.Errorf("redis = %+v", r)
	}
	if cfg.Server.Addr != ":9000" || cfg.Server.MetricsAddr != ":9100" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Server.ShutdownTimeout.Duration != 5*time.Second {
		t.Errorf("shutdown timeout = %v", cfg.Server.ShutdownTimeout.Duration)
	}
	if cfg.Schedule.Cron != "0 * * * *" || cfg.Schedule.Disabled {
		t.Errorf("schedule = %+v", cfg.Schedule)
	}
	if cfg.Telemetry.SentryDSN != "https://key@sentry.test/1" || cfg.Telemetry.Environment != "staging" {
		t.Errorf("telemetry = %+v", cfg.Telemetry)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "console" {
		t.Errorf("log = %+v", cfg.Log)
	}
	if !cfg.Privacy.Redact.Enabled || len(cfg.Privacy.Redact.Patterns) != 1 {
		t.Errorf("privacy = %+v", cfg.Privacy)
	}
	if err := cfg.RequireCredentials(); err != nil {
		t.Errorf("require credentials: %v", err)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	dir := t.TempDir()
	clearEnv(t)
	writeTestYAML(t, dir, DefaultConfigFile, "source: {}\n")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Source.AccountIDEnv != DefaultAccountIDEnv {
		t.Errorf("account id env = %q", cfg.Source.AccountIDEnv)
	}
	if cfg.Source.BearerTokenEnv != DefaultBearerTokenEnv {
		t.Errorf("bearer token env = %q", cfg.Source.BearerTokenEnv)
	}
	if cfg.Source.APIBase != DefaultAPIBase {
		t.Errorf("api base = %q", cfg.Source.APIBase)
	}
	if cfg.Source.WebDomain != DefaultWebDomain {
		t.Errorf("web domain = %q", cfg.Source.WebDomain)
	}
	if cfg.Source.MaxResults != DefaultMaxResults {
		t.Errorf("max results = %d", cfg.Source.MaxResults)
	}
	if cfg.Webhook.URLEnv != DefaultWebhookURLEnv || cfg.Webhook.MaxContent != DefaultMaxContent {
		t.Errorf("webhook = %+v", cfg.Webhook)
	}
	if cfg.Storage.Backend != DefaultBackend || cfg.Storage.Path != DefaultStoragePath {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Storage.RetainDays != DefaultRetainDays {
		t.Errorf("retain days = %d", cfg.Storage.RetainDays)
	}
	if cfg.Storage.Redis.KeyPrefix != DefaultKeyPrefix {
		t.Errorf("key prefix = %q", cfg.Storage.Redis.KeyPrefix)
	}
	if cfg.Server.Addr != DefaultAddr || cfg.Server.MetricsAddr != "" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Server.ShutdownTimeout.Duration != DefaultShutdownTimeout {
		t.Errorf("shutdown timeout = %v", cfg.Server.ShutdownTimeout.Duration)
	}
	if cfg.Schedule.Cron != DefaultCron || cfg.Schedule.Disabled {
		t.Errorf("schedule = %+v", cfg.Schedule)
	}
	if cfg.Telemetry.SentryDSNEnv != DefaultSentryDSNEnv || cfg.Telemetry.SentryDSN != "" {
		t.Errorf("telemetry = %+v", cfg.Telemetry)
	}
	if cfg.Log.Level != DefaultLogLevel || cfg.Log.Format != DefaultLogFormat {
		t.Errorf("log = %+v", cfg.Log)
	}
}

func TestLoad_PebbleDefaultPath(t *testing.T) {
	dir := t.TempDir()
	clearEnv(t)
	writeTestYAML(t, dir, DefaultConfigFile, "storage:\n  backend: pebble\n")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Path != DefaultPebblePath {
		t.Errorf("path = %q, want %q", cfg.Storage.Path, DefaultPebblePath)
	}
}

func TestLoad_MissingFileUsesEnv(t *testing.T) {
	dir := t.TempDir()
	clearEnv(t)
	t.Setenv(DefaultAccountIDEnv, "42")
	t.Setenv(DefaultBearerTokenEnv, "token")
	t.Setenv(DefaultWebhookURLEnv, "https://discord.test/hook")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load without config.yaml: %v", err)
	}
	if cfg.Source.AccountID != "42" || cfg.Source.BearerToken != "token" || cfg.Webhook.URL != "https://discord.test/hook" {
		t.Errorf("env not resolved: %+v %+v", cfg.Source, cfg.Webhook)
	}
	if err := cfg.RequireCredentials(); err != nil {
		t.Errorf("require credentials: %v", err)
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	clearEnv(t)
	// t.Setenv restores the original value; the .env loader only fills unset
	// variables, so unset them explicitly for the duration of the test.
	for _, name := range []string{DefaultAccountIDEnv, DefaultBearerTokenEnv} {
		if err := os.Unsetenv(name); err != nil {
			t.Fatalf("unsetenv: %v", err)
		}
	}
	t.Setenv(DefaultWebhookURLEnv, "https://from-env.test/hook")

	writeTestYAML(t, dir, DefaultEnvFile, strings.Join([]string{
		DefaultAccountIDEnv + "=77",
		DefaultBearerTokenEnv + "=dotenv-token",
		DefaultWebhookURLEnv + "=https://from-dotenv.test/hook",
	}, "\n")+"\n")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Source.AccountID != "77" {
		t.Errorf("account id = %q, want value from .env", cfg.Source.AccountID)
	}
	if cfg.Source.BearerToken != "dotenv-token" {
		t.Errorf("bearer token = %q, want value from .env", cfg.Source.BearerToken)
	}
	if cfg.Webhook.URL != "https://from-env.test/hook" {
		t.Errorf("webhook url = %q, existing env must win over .env", cfg.Webhook.URL)
	}
}

func TestLoad_DurationParsing(t *testing.T) {
	dir := t.TempDir()
	clearEnv(t)
	writeTestYAML(t, dir, DefaultConfigFile, "server:\n  shutdown_timeout: 2m30s\n")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.ShutdownTimeout.Duration != 150*time.Second {
		t.Errorf("shutdown timeout = %v, want 2m30s", cfg.Server.ShutdownTimeout.Duration)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"bad duration", "server:\n  shutdown_timeout: soon\n", "parse duration"},
		{"unknown backend", "storage:\n  backend: mongo\n", "unknown backend"},
		{"redis without addr", "storage:\n  backend: redis\n", "storage.redis.addr"},
		{"max results too small", "source:\n  max_results: 2\n", "out of range"},
		{"max results too large", "source:\n  max_results: 500\n", "out of range"},
		{"bad cron", "schedule:\n  cron: \"every five minutes\"\n", "schedule.cron"},
		{"bad log level", "log:\n  level: loud\n", "log.level"},
		{"bad log format", "log:\n  format: xml\n", "log.format"},
		{"negative max content", "webhook:\n  max_content: -1\n", "webhook.max_content"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			clearEnv(t)
			writeTestYAML(t, dir, DefaultConfigFile, tt.yaml)

			_, err := Load(dir)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	writeTestYAML(t, dir, DefaultConfigFile, "source: [unclosed\n")

	_, err := Load(dir)
	if err == nil {
		t.Fatal("expected error for invalid yaml")
	}
	if !strings.Contains(err.Error(), "parse config") {
		t.Errorf("error = %q, want parse config", err.Error())
	}
}

func TestLoad_EmptyDir(t *testing.T) {
	_, err := Load("")
	if err == nil {
		t.Fatal("expected error for empty dir")
	}
}

func TestRequireCredentials_ListsMissing(t *testing.T) {
	dir := t.TempDir()
	clearEnv(t)
	t.Setenv(DefaultBearerTokenEnv, "token")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	err = cfg.RequireCredentials()
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	if !strings.Contains(msg, DefaultAccountIDEnv) || !strings.Contains(msg, DefaultWebhookURLEnv) {
		t.Errorf("error = %q, want both missing variables named", msg)
	}
	if strings.Contains(msg, DefaultBearerTokenEnv) {
		t.Errorf("error = %q, bearer token is set and must not be listed", msg)
	}
}
