package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ppiankov/postmirror/internal/config"
	"github.com/ppiankov/postmirror/internal/dispatch"
	"github.com/ppiankov/postmirror/internal/mirror"
	"github.com/ppiankov/postmirror/internal/privacy"
	"github.com/ppiankov/postmirror/internal/render"
	"github.com/ppiankov/postmirror/internal/source"
	"github.com/ppiankov/postmirror/internal/store"
	"github.com/ppiankov/postmirror/internal/telemetry"
)

// app holds everything a command needs to run the mirror.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	reporter telemetry.Reporter
	store    store.Store
	journal  store.Journal // nil when the backend keeps no journal
	registry *prometheus.Registry
	mirror   *mirror.Mirror
}

// appMode selects which collaborators newApp builds.
type appMode int

const (
	modeStore   appMode = iota // config, logger and store only
	modePreview                // plus source and renderer
	modeMirror                 // plus webhook, metrics and crash reporting
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.Storage.Backend != store.BackendRedis {
		if dir := filepath.Dir(cfg.Storage.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create storage dir: %w", err)
			}
		}
	}
	st, err := store.Open(ctx, store.Options{
		Backend:       cfg.Storage.Backend,
		Path:          cfg.Storage.Path,
		RedisAddr:     cfg.Storage.Redis.Addr,
		RedisPassword: cfg.Storage.Redis.Password,
		RedisDB:       cfg.Storage.Redis.DB,
		KeyPrefix:     cfg.Storage.Redis.KeyPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

func newApp(ctx context.Context, mode appMode) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if mode > modeStore {
		if err := cfg.RequireCredentials(); err != nil {
			return nil, fmt.Errorf("credentials: %w", err)
		}
	}

	log, err := telemetry.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	a := &app{cfg: cfg, log: log, reporter: telemetry.Nop{}}

	a.store, err = openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if j, ok := a.store.(store.Journal); ok {
		a.journal = j
	}
	if mode == modeStore {
		return a, nil
	}

	fetcher, err := source.NewClient(cfg.Source.AccountID, cfg.Source.BearerToken,
		source.WithBaseURL(cfg.Source.APIBase),
		source.WithMaxResults(cfg.Source.MaxResults),
		source.WithUserAgent("postmirror/"+Version),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	renderOpts := []render.Option{
		render.WithDomain(cfg.Source.WebDomain),
		render.WithMaxContent(cfg.Webhook.MaxContent),
	}
	if cfg.Privacy.Redact.Enabled {
		patterns, err := privacy.Compile(cfg.Privacy.Redact.Patterns)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("privacy: %w", err)
		}
		renderOpts = append(renderOpts, render.WithRedaction(patterns))
	}
	renderer := render.New(renderOpts...)

	opts := []mirror.Option{
		mirror.WithLogger(log.With().Str("component", "mirror").Logger()),
	}

	var sender mirror.Sender
	if mode == modeMirror {
		webhook, err := dispatch.NewWebhook(cfg.Webhook.URL)
		if err != nil {
			a.Close()
			return nil, err
		}
		sender = webhook

		a.reporter, err = telemetry.NewReporter(telemetry.SentryOptions{
			DSN:         cfg.Telemetry.SentryDSN,
			Environment: cfg.Telemetry.Environment,
			Release:     "postmirror@" + Version,
		}, log)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("telemetry: %w", err)
		}

		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts = append(opts, mirror.WithMetrics(mirror.NewMetrics(a.registry)))
		if a.journal != nil {
			opts = append(opts, mirror.WithJournal(a.journal))
		}
	}

	a.mirror = mirror.New(a.store, fetcher, renderer, sender, opts...)
	return a, nil
}

// runOnce performs one routine and prunes the journal after a clean run.
func (a *app) runOnce(ctx context.Context) (mirror.Result, error) {
	res, err := a.mirror.Run(ctx)
	if err != nil {
		return res, err
	}
	a.prune(ctx)
	return res, nil
}

func (a *app) prune(ctx context.Context) {
	if a.journal == nil || a.cfg.Storage.RetainDays <= 0 {
		return
	}
	n, err := a.journal.PruneDeliveries(ctx, a.cfg.Storage.RetainDays)
	if err != nil {
		a.log.Warn().Err(err).Msg("Failed to prune delivery journal")
		return
	}
	if n > 0 {
		a.log.Debug().Int64("pruned", n).Msg("Pruned delivery journal")
	}
}

// Close releases the store and flushes pending reports.
func (a *app) Close() {
	if a == nil {
		return
	}
	if a.reporter != nil {
		a.reporter.Flush()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("Failed to close store")
		}
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if cmd != nil && cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}
