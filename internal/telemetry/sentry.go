package telemetry

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
)

const flushTimeout = 2 * time.Second

// Reporter forwards terminal errors to a crash-reporting service.
type Reporter interface {
	Capture(err error)
	Flush()
}

// Nop discards reports.
type Nop struct{}

func (Nop) Capture(error) {}
func (Nop) Flush()        {}

// SentryReporter sends errors to Sentry through its own hub.
type SentryReporter struct {
	hub *sentry.Hub
	log zerolog.Logger
}

// SentryOptions configures NewReporter.
type SentryOptions struct {
	DSN         string
	Environment string
	Release     string
}

// NewReporter returns a Sentry reporter, or Nop when no DSN is configured.
func NewReporter(opts SentryOptions, log zerolog.Logger) (Reporter, error) {
	if opts.DSN == "" {
		return Nop{}, nil
	}
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         opts.DSN,
		Environment: opts.Environment,
		Release:     opts.Release,
	})
	if err != nil {
		return nil, fmt.Errorf("sentry client: %w", err)
	}
	return &SentryReporter{
		hub: sentry.NewHub(client, sentry.NewScope()),
		log: log,
	}, nil
}

// Capture reports err.
func (r *SentryReporter) Capture(err error) {
	if err == nil {
		return
	}
	id := r.hub.CaptureException(err)
	if id != nil {
		r.log.Debug().Str("event_id", string(*id)).Msg("Reported error to Sentry")
	}
}

// Flush waits briefly for queued events to be sent.
func (r *SentryReporter) Flush() {
	if !r.hub.Flush(flushTimeout) {
		r.log.Warn().Msg("Sentry flush timed out")
	}
}

// Fail logs err, reports it and returns it unchanged so trigger adapters can
// re-raise it to their host.
func Fail(log zerolog.Logger, rep Reporter, err error, msg string) error {
	if err == nil {
		return nil
	}
	log.Error().Err(err).Msg(msg)
	if rep != nil {
		rep.Capture(err)
	}
	return err
}
