package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/cardcycle/internal/cli"
	"github.com/Veraticus/cardcycle/internal/config"
	"github.com/Veraticus/cardcycle/internal/storage"
)

func checkpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Manage database checkpoints",
		Long: `Create, list, restore, and delete database checkpoints.

Checkpoints are also taken automatically before purges, future reversals
and imports; only the most recent automatic ones are kept.`,
		Example: `  # Create a checkpoint before a large edit
  cardcycle checkpoint create --tag "before-cleanup"

  # List all checkpoints
  cardcycle checkpoint list

  # Restore from a checkpoint
  cardcycle checkpoint restore before-cleanup`,
	}

	cmd.AddCommand(createCheckpointCmd())
	cmd.AddCommand(listCheckpointsCmd())
	cmd.AddCommand(restoreCheckpointCmd())
	cmd.AddCommand(deleteCheckpointCmd())

	return cmd
}

// openCheckpoints opens the configured database with its checkpoint manager.
// Checkpoints are per database, so no owner is needed.
func openCheckpoints(cmd *cobra.Command) (*storage.SQLiteStorage, *storage.CheckpointManager, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, nil, err
	}
	store, err := initStorage(cmd.Context(), cfg.DatabasePath)
	if err != nil {
		return nil, nil, err
	}
	manager, err := store.NewCheckpointManager()
	if err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("failed to create checkpoint manager: %w", err)
	}
	return store, manager, nil
}

func findCheckpoint(cmd *cobra.Command, manager *storage.CheckpointManager, id string) (*storage.CheckpointInfo, error) {
	checkpoints, err := manager.List(cmd.Context())
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	for i := range checkpoints {
		if checkpoints[i].ID == id {
			return &checkpoints[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", storage.ErrCheckpointNotFound, id)
}

func createCheckpointCmd() *cobra.Command {
	var tag, description string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new checkpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, manager, err := openCheckpoints(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			info, err := manager.Create(cmd.Context(), tag, description)
			if err != nil {
				return fmt.Errorf("failed to create checkpoint: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Created checkpoint %s (%d purchases, %d installments)",
				cli.InfoStyle.Render(info.ID), info.Purchases, info.Installments)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&tag, "tag", "t", "", "Checkpoint tag/name (auto-generated if not provided)")
	cmd.Flags().StringVarP(&description, "description", "d", "", "Description of the checkpoint")

	return cmd
}

func listCheckpointsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all checkpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, manager, err := openCheckpoints(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			checkpoints, err := manager.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list checkpoints: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatCheckpoints(checkpoints))
			return nil
		},
	}
}

func restoreCheckpointCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "restore <checkpoint-id>",
		Short: "Restore database from a checkpoint",
		Long:  `Replace the current database with a checkpoint. The current database is backed up first.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, manager, err := openCheckpoints(cmd)
			if err != nil {
				return err
			}
			// Restore closes the database itself.
			defer func() { _ = store.Close() }()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			info, err := findCheckpoint(cmd, manager, args[0])
			if err != nil {
				return err
			}

			fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("This will replace your current database with checkpoint %s (created %s).",
				info.ID, info.CreatedAt.Format("2006-01-02 15:04:05"))))
			ok, err := cli.NewPrompter(cmd.InOrStdin(), out, yes).Confirm(ctx, "Continue?")
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(out, cli.SubtitleStyle.Render("Restore cancelled."))
				return nil
			}

			if err := manager.Restore(ctx, info.ID); err != nil {
				return fmt.Errorf("failed to restore checkpoint: %w", err)
			}

			fmt.Fprintln(out, cli.FormatSuccess("Restored from checkpoint "+info.ID))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation prompt")

	return cmd
}

func deleteCheckpointCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <checkpoint-id>",
		Short: "Delete a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, manager, err := openCheckpoints(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if _, err := findCheckpoint(cmd, manager, args[0]); err != nil {
				return err
			}

			ok, err := cli.NewPrompter(cmd.InOrStdin(), out, yes).Confirm(ctx, "Permanently delete checkpoint "+args[0]+"?")
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(out, cli.SubtitleStyle.Render("Deletion cancelled."))
				return nil
			}

			if err := manager.Delete(ctx, args[0]); err != nil {
				return fmt.Errorf("failed to delete checkpoint: %w", err)
			}

			fmt.Fprintln(out, cli.FormatSuccess("Deleted checkpoint "+args[0]))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation prompt")

	return cmd
}
