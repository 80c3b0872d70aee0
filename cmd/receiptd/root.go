package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/creastat/receipts/config"
	"github.com/creastat/receipts/logger"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "receiptd",
		Short: "Pix receipt ledger and conversion reporter",
		Long: `receiptd reads payment receipts sent through a chat channel, keeps a
running purchase total per customer and reports finalized purchases to the
Meta Conversions API.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", config.DefaultPath, "Path to the YAML config file")
	cmd.PersistentFlags().String("log-level", "", "Override log level (debug, info, warn, error)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newExtractCmd())

	return cmd
}

// loadConfig reads .env, the config file and the environment, then builds
// the logger. The returned closer releases the log file.
func loadConfig(cmd *cobra.Command) (*config.Config, *log.Logger, io.Closer, error) {
	_ = godotenv.Load()

	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("getting config flag: %w", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, nil, err
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	lg, closer, err := logger.New(logger.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return cfg, lg, closer, nil
}
