package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/postmirror/internal/schedule"
	"github.com/ppiankov/postmirror/internal/server"
)

var (
	serveAddr       string
	serveNoSchedule bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP trigger and the cron scheduler",
	Long: "serve listens for /health and /execute requests and, unless disabled, " +
		"runs the mirror on the configured cron schedule until interrupted.",
	RunE: serveAction,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	serveCmd.Flags().BoolVar(&serveNoSchedule, "no-schedule", false, "disable the cron scheduler")
	rootCmd.AddCommand(serveCmd)
}

func serveAction(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, modeMirror)
	if err != nil {
		return err
	}
	defer a.Close()

	run := func(ctx context.Context) error {
		_, err := a.runOnce(ctx)
		return err
	}

	srv := server.New(run,
		server.WithLogger(a.log.With().Str("component", "server").Logger()),
		server.WithReporter(a.reporter),
		server.WithGatherer(a.registry),
	)

	var wg sync.WaitGroup
	if !a.cfg.Schedule.Disabled && !serveNoSchedule {
		sched, err := schedule.New(a.cfg.Schedule.Cron, func(ctx context.Context) error {
			if err := run(ctx); err != nil {
				a.reporter.Capture(err)
				return err
			}
			return nil
		}, schedule.WithLogger(a.log.With().Str("component", "schedule").Logger()))
		if err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			sched.Run(ctx)
		}()
	}

	addr := a.cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	err = srv.Serve(ctx, server.Config{
		Addr:            addr,
		MetricsAddr:     a.cfg.Server.MetricsAddr,
		ShutdownTimeout: a.cfg.Server.ShutdownTimeout.Duration,
	})
	stop()
	wg.Wait()
	return err
}
