package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/znz-systems/sortbox/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:           "sortbox",
	Short:         "Sortbox mail sorter",
	Long:          "Ingests connected mailboxes, files new mail into user categories and unsubscribes from lists on request",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v, err := config.New()
		if err != nil {
			return err
		}
		if err := v.BindPFlag("DATABASE_URL", cmd.Flags().Lookup("database-url")); err != nil {
			return err
		}
		if err := v.BindPFlag("LOG_LEVEL", cmd.Flags().Lookup("log-level")); err != nil {
			return err
		}
		cfg, err = config.FromViper(v)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		setupLogger(cfg)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("database-url", "", "Postgres connection URL (overrides DATABASE_URL)")
	rootCmd.PersistentFlags().String("log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")

	rootCmd.AddCommand(serveCmd, migrateCmd, sweepCmd, unsubscribeCmd, categoryCmd)
}

func setupLogger(cfg *config.Config) {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}
