package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/postmirror/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config directory with example files",
	RunE:  initAction,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func initAction(_ *cobra.Command, _ []string) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	created := 0

	configPath := filepath.Join(configDir, config.DefaultConfigFile)
	wrote, err := writeIfNotExists(configPath, []byte(exampleConfig), 0o644)
	if err != nil {
		return err
	}
	if wrote {
		created++
	}

	envPath := filepath.Join(configDir, config.DefaultEnvFile)
	wrote, err = writeIfNotExists(envPath, []byte(exampleEnv), 0o600)
	if err != nil {
		return err
	}
	if wrote {
		created++
	}

	if created == 0 {
		fmt.Printf("Config directory %s already initialized.\n", configDir)
	} else {
		fmt.Printf("Initialized %s with %d config files.\n", configDir, created)
	}
	return nil
}

// writeIfNotExists writes data to path if the file does not exist.
// Returns true if the file was created.
func writeIfNotExists(path string, data []byte, perm os.FileMode) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("  exists: %s\n", path)
		return false, nil
	}
	if err := os.WriteFile(path, data, perm); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Printf("  created: %s\n", path)
	return true, nil
}

const exampleConfig = `# postmirror configuration

source:
  # account_id: "783214"
  account_id_env: TWITTER_ACCOUNT_ID
  bearer_token_env: TWITTER_BEARER_AUTH
  web_domain: twitter.com
  max_results: 100

webhook:
  url_env: DISCORD_WEBHOOK_URL
  max_content: 2000

storage:
  backend: sqlite # sqlite, redis or pebble
  path: .postmirror/postmirror.db
  retain_days: 30
  # redis:
  #   addr: localhost:6379
  #   password_env: REDIS_PASSWORD
  #   key_prefix: "postmirror:"

server:
  addr: ":8080"
  # metrics_addr: ":9090"
  shutdown_timeout: 30s

schedule:
  cron: "*/5 * * * *"
  disabled: false

telemetry:
  sentry_dsn_env: SENTRY_DSN
  environment: production

log:
  level: info
  format: json

privacy:
  redact:
    enabled: false
    patterns: []
`

const exampleEnv = `# Secrets for postmirror. Variables already set in the environment win.
TWITTER_ACCOUNT_ID=
TWITTER_BEARER_AUTH=
DISCORD_WEBHOOK_URL=
SENTRY_DSN=
`
