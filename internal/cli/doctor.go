package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/adhocore/gronx"
	"github.com/spf13/cobra"

	"github.com/ppiankov/postmirror/internal/config"
	"github.com/ppiankov/postmirror/internal/privacy"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, credentials and storage",
	RunE:  doctorAction,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func doctorAction(cmd *cobra.Command, _ []string) error {
	ok := true

	// Config dir is optional when everything comes from the environment.
	if info, err := os.Stat(configDir); err != nil || !info.IsDir() {
		printInfo("config directory %s not found, using defaults and environment", configDir)
	} else {
		printCheck(true, "config directory %s", configDir)
	}

	cfg, err := config.Load(configDir)
	if err != nil {
		printCheck(false, "config: %v", err)
		return fmt.Errorf("some checks failed")
	}
	printCheck(true, "config (backend %s, cron %q)", cfg.Storage.Backend, cfg.Schedule.Cron)

	for _, c := range []struct {
		name, env, value string
	}{
		{"account id", cfg.Source.AccountIDEnv, cfg.Source.AccountID},
		{"bearer token", cfg.Source.BearerTokenEnv, cfg.Source.BearerToken},
		{"webhook url", cfg.Webhook.URLEnv, cfg.Webhook.URL},
	} {
		if c.value == "" {
			printCheck(false, "%s: $%s is not set", c.name, c.env)
			ok = false
		} else {
			printCheck(true, "%s", c.name)
		}
	}

	if cfg.Telemetry.SentryDSN == "" {
		printInfo("crash reporting disabled ($%s not set)", cfg.Telemetry.SentryDSNEnv)
	} else {
		printCheck(true, "crash reporting")
	}

	if cfg.Privacy.Redact.Enabled {
		if _, err := privacy.Compile(cfg.Privacy.Redact.Patterns); err != nil {
			printCheck(false, "redaction: %v", err)
			ok = false
		} else {
			printCheck(true, "redaction (%d patterns)", len(cfg.Privacy.Redact.Patterns))
		}
	}

	ctx := commandContext(cmd)
	st, err := openStore(ctx, cfg)
	if err != nil {
		printCheck(false, "storage: %v", err)
		ok = false
	} else {
		defer func() { _ = st.Close() }()
		if id, found, err := st.Get(ctx); err != nil {
			printCheck(false, "storage %s: %v", cfg.Storage.Backend, err)
			ok = false
		} else if !found {
			printCheck(true, "storage %s (no cursor yet, first run will seed)", cfg.Storage.Backend)
		} else {
			printCheck(true, "storage %s (cursor %s)", cfg.Storage.Backend, id)
		}
	}

	if !cfg.Schedule.Disabled {
		if next, err := gronx.NextTickAfter(cfg.Schedule.Cron, time.Now(), false); err == nil {
			printInfo("next scheduled run %s", next.Format(time.RFC3339))
		}
	}

	if !ok {
		return fmt.Errorf("some checks failed")
	}
	fmt.Println("\nAll checks passed.")
	return nil
}

func printCheck(pass bool, format string, args ...any) {
	mark := "FAIL"
	if pass {
		mark = " OK "
	}
	fmt.Printf("[%s] %s\n", mark, fmt.Sprintf(format, args...))
}

func printInfo(format string, args ...any) {
	fmt.Printf("[INFO] %s\n", fmt.Sprintf(format, args...))
}
