package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/znz-systems/sortbox/internal/ingest"
)

var sweepAccount string

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one ingestion sweep and exit",
	Long:  "Runs a single ingestion cycle for every connected account, or for one account with --account",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")

		if sweepAccount != "" {
			id, err := uuid.Parse(sweepAccount)
			if err != nil {
				return fmt.Errorf("invalid --account: %w", err)
			}
			report, err := a.ingest.RunIngestionCycle(ctx, id)
			if err != nil {
				return err
			}
			return enc.Encode(report)
		}

		summary, err := ingest.NewScheduler(a.accounts, a.ingest, ingest.SchedulerOptions{}).Sweep(ctx)
		if err != nil {
			return err
		}
		return enc.Encode(summary)
	},
}

func init() {
	sweepCmd.Flags().StringVar(&sweepAccount, "account", "", "only ingest this account ID")
}
