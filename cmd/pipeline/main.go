package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"order-analytics/config"
	"order-analytics/internal/util"

	"github.com/spf13/cobra"
)

var (
	cfg      *config.Config
	logLevel string

	rootCmd = &cobra.Command{
		Use:   "order-analytics",
		Short: "Medallion pipeline for order analytics",
		Long: `order-analytics loads customer and order exports into a bronze layer,
cleans and validates them into silver, and computes business KPIs in gold.

Configuration comes from the environment and an optional .env file.`,
		PersistentPreRunE: initApp,
		SilenceUsage:      true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides LOG_LEVEL")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(workerCmd())
	rootCmd.AddCommand(inspectCmd())
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := rootCmd.ExecuteContext(ctx)
	cancel()
	util.SyncLogger()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initApp(_ *cobra.Command, _ []string) error {
	cfg = config.Load()
	if logLevel != "" {
		cfg.Observ.LogLevel = logLevel
	}

	if err := util.InitLogger(cfg.Server.Env, cfg.Observ.LogLevel); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}
