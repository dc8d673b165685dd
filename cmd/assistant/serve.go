package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xiy/memory-assistant/internal/admin"
	"github.com/xiy/memory-assistant/internal/mcp"
	"github.com/xiy/memory-assistant/internal/metrics"
	"github.com/xiy/memory-assistant/internal/report"
	"github.com/xiy/memory-assistant/internal/reporter"
)

func newServeCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the memory tools to MCP clients over stdio",
		Long:  "Run the MCP stdio server, the periodic decay reporter and, when server.metrics_addr is set, a Prometheus endpoint.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := openApp(ctx, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			mcp.Version = version
			server := mcp.NewServer(a.svc, a.cfg.Server.Name, a.logger, a.store)
			w := report.NewWriter(a.cfg.Paths.SummariesDir, nil, a.logger)
			interval := time.Duration(a.cfg.Server.ReportIntervalSeconds) * time.Second

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				reporter.Start(gctx, a.logger, interval, a.svc, w)
				return nil
			})
			g.Go(func() error {
				return metrics.Serve(gctx, a.cfg.Server.MetricsAddr, a.logger)
			})

			// Serve blocks on stdin, so a signal cannot interrupt it; stop
			// waiting on it once the context ends.
			served := make(chan error, 1)
			go func() {
				a.logger.Info("starting MCP stdio server", "db", a.cfg.Paths.DBFile)
				served <- server.Serve(gctx, os.Stdin, os.Stdout)
			}()

			var serveErr error
			select {
			case serveErr = <-served:
			case <-gctx.Done():
			}
			cancel()
			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
				return serveErr
			}
			return nil
		},
	}
}

func newAdminCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "admin",
		Short: "Open the terminal dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := openApp(ctx, flags)
			if err != nil {
				return err
			}
			defer a.Close()
			return admin.Run(ctx, a.store, a.cfg.Server.Name)
		},
	}
}
