package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var unsubscribeCmd = &cobra.Command{
	Use:   "unsubscribe <message-id>",
	Short: "Try to unsubscribe from the list a stored message came from",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid message id: %w", err)
		}
		ctx := context.Background()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.agent.AttemptUnsubscribe(ctx, id)
		if err != nil {
			return err
		}
		status := "ok"
		switch {
		case res.Skipped:
			status = "skipped"
		case !res.Success:
			status = "failed"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", status, res.Message)
		if !res.Success {
			return fmt.Errorf("unsubscribe failed")
		}
		return nil
	},
}
