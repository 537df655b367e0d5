package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	categoryUser        string
	categoryDescription string
)

var categoryCmd = &cobra.Command{
	Use:   "category",
	Short: "Manage a user's categories",
}

var categoryAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a category",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := uuid.Parse(categoryUser)
		if err != nil {
			return fmt.Errorf("invalid --user: %w", err)
		}
		return withApp(func(ctx context.Context, a *app) error {
			c, err := a.categories.Create(ctx, userID, args[0], categoryDescription)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s %q\n", c.ID, c.Name)
			return nil
		})
	},
}

var categoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List categories",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := uuid.Parse(categoryUser)
		if err != nil {
			return fmt.Errorf("invalid --user: %w", err)
		}
		return withApp(func(ctx context.Context, a *app) error {
			cats, err := a.categories.List(ctx, userID)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tDESCRIPTION")
			for _, c := range cats {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", c.ID, c.Name, c.Description)
			}
			return tw.Flush()
		})
	},
}

var categoryDeleteCmd = &cobra.Command{
	Use:   "delete <category-id>",
	Short: "Delete a category and the messages filed under it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := uuid.Parse(categoryUser)
		if err != nil {
			return fmt.Errorf("invalid --user: %w", err)
		}
		categoryID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid category id: %w", err)
		}
		return withApp(func(ctx context.Context, a *app) error {
			if err := a.categories.Delete(ctx, userID, categoryID); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "deleted")
			return nil
		})
	},
}

func withApp(fn func(ctx context.Context, a *app) error) error {
	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func init() {
	categoryCmd.PersistentFlags().StringVar(&categoryUser, "user", "", "owning user ID")
	_ = categoryCmd.MarkPersistentFlagRequired("user")
	categoryAddCmd.Flags().StringVar(&categoryDescription, "description", "", "what belongs in this category; shown to the classifier")
	categoryCmd.AddCommand(categoryAddCmd, categoryListCmd, categoryDeleteCmd)
}
