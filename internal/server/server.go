// Package server exposes the mirror routine over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ppiankov/postmirror/internal/telemetry"
)

const (
	DefaultShutdownTimeout = 30 * time.Second

	readHeaderTimeout = 10 * time.Second
)

// Runner performs one mirror routine.
type Runner func(ctx context.Context) error

// Server answers health checks and starts mirror runs on request.
type Server struct {
	run      Runner
	log      zerolog.Logger
	reporter telemetry.Reporter
	gatherer prometheus.Gatherer

	router *mux.Router
	runs   sync.WaitGroup
}

// Option customises a Server.
type Option func(*Server)

func WithLogger(log zerolog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithReporter forwards background run failures to a crash reporter.
func WithReporter(rep telemetry.Reporter) Option {
	return func(s *Server) {
		if rep != nil {
			s.reporter = rep
		}
	}
}

// WithGatherer sets the registry served on the metrics listener.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// New builds the router around run.
func New(run Runner, opts ...Option) *Server {
	s := &Server{
		run:      run,
		log:      zerolog.Nop(),
		reporter: telemetry.Nop{},
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth)
	r.HandleFunc("/execute", s.handleExecute)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	s.router = r
	return s
}

// Handler returns the HTTP handler for the trigger endpoints.
func (s *Server) Handler() http.Handler { return s.router }

// MetricsHandler returns the Prometheus scrape handler.
func (s *Server) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h := w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Cache-Control", "no-store, no-cache, must-revalidate, proxy-revalidate")
	h.Set("Expires", "0")
	h.Set("Surrogate-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	s.Trigger(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("{}"))
}

// Trigger starts a run in the background. The run outlives ctx's
// cancellation but keeps its values. Failures are only logged and reported.
func (s *Server) Trigger(ctx context.Context) {
	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		err := s.run(context.WithoutCancel(ctx))
		_ = telemetry.Fail(s.log, s.reporter, err, "Triggered run failed")
	}()
}

// Wait blocks until all triggered runs have finished.
func (s *Server) Wait() { s.runs.Wait() }

// Config holds listener settings for Serve.
type Config struct {
	Addr            string
	MetricsAddr     string // empty disables the metrics listener
	ShutdownTimeout time.Duration
}

// Serve listens until ctx is cancelled, then shuts down gracefully and waits
// for in-flight runs up to the shutdown timeout.
func (s *Server) Serve(ctx context.Context, cfg Config) error {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}

	servers := []*http.Server{newHTTPServer(cfg.Addr, s.Handler())}
	if cfg.MetricsAddr != "" {
		metrics := http.NewServeMux()
		metrics.Handle("/metrics", s.MetricsHandler())
		servers = append(servers, newHTTPServer(cfg.MetricsAddr, metrics))
	}

	listeners := make([]net.Listener, 0, len(servers))
	for _, srv := range servers {
		ln, err := net.Listen("tcp", srv.Addr)
		if err != nil {
			for _, l := range listeners {
				_ = l.Close()
			}
			return fmt.Errorf("listen %s: %w", srv.Addr, err)
		}
		listeners = append(listeners, ln)
	}

	errc := make(chan error, len(servers))
	for i, srv := range servers {
		s.log.Info().Str("addr", listeners[i].Addr().String()).Msg("Listening")
		go func(srv *http.Server, ln net.Listener) {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- err
			}
		}(srv, listeners[i])
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errc:
		s.log.Error().Err(serveErr).Msg("Server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn().Err(err).Str("addr", srv.Addr).Msg("Shutdown incomplete")
		}
	}

	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		s.log.Warn().Msg("Gave up waiting for in-flight runs")
	}

	if serveErr != nil {
		return fmt.Errorf("serve: %w", serveErr)
	}
	return nil
}

func newHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}
