package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/creastat/receipts/server"
	"github.com/creastat/receipts/telemetry"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, closer, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(cfg.Telemetry.ServiceName, logger)
		if err != nil {
			return err
		}
		defer func() { _ = shutdown(context.Background()) }()
	}

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "err", err)
		return err
	}
	defer a.Close()

	logger.Info("ledger ready", "driver", cfg.Ledger.Driver)

	opts := server.Options{
		Port:         cfg.Server.Port,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		Timeout:      cfg.Server.Timeout,
		Logger:       logger,
	}
	if a.archive != nil {
		opts.Purchases = a.archive
	}
	srv := server.New(a.orch, a.ledger, opts)
	return srv.Start(ctx)
}
