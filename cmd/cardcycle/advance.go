package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Veraticus/cardcycle/internal/cli"
	"github.com/Veraticus/cardcycle/internal/engine"
	"github.com/Veraticus/cardcycle/internal/model"
)

func advanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "advance",
		Short: "Prepay a statement and optionally settle what it covers",
		Example: `  # Pay 250.00 towards the March statement, settling the oldest charges it covers
  cardcycle advance apply --card <card-id> --month 2025-03 --amount 250 --settle

  # Undo it exactly
  cardcycle advance undo <advance-id>`,
	}

	cmd.AddCommand(applyAdvanceCmd())
	cmd.AddCommand(undoAdvanceCmd())
	cmd.AddCommand(listAdvancesCmd())

	return cmd
}

func applyAdvanceCmd() *cobra.Command {
	var cardID, month, amount string
	var settle bool

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply a statement advance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			value, err := amountFlag("amount", amount)
			if err != nil {
				return err
			}
			statementMonth, err := requireMonth("month", month)
			if err != nil {
				return err
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			advance, err := a.engine.AdvanceStatement(cmd.Context(), a.owner, engine.AdvanceInput{
				StatementMonth: statementMonth,
				Amount:         value,
				CardID:         cardID,
				SettleOldest:   settle,
			})
			if err != nil {
				return fmt.Errorf("failed to apply advance: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatAdvance(advance))
			return nil
		},
	}

	cmd.Flags().StringVar(&cardID, "card", "", "Card id")
	cmd.Flags().StringVar(&month, "month", "", "Statement month YYYY-MM")
	cmd.Flags().StringVar(&amount, "amount", "", "Advance amount")
	cmd.Flags().BoolVar(&settle, "settle", false, "Settle the oldest unsettled charges the amount covers")
	_ = cmd.MarkFlagRequired("card")

	return cmd
}

func undoAdvanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "undo <advance-id>",
		Short: "Undo a statement advance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.engine.UndoAdvance(cmd.Context(), a.owner, args[0]); err != nil {
				return fmt.Errorf("failed to undo advance: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Advance "+args[0]+" undone"))
			return nil
		},
	}
}

func listAdvancesCmd() *cobra.Command {
	var cardID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List applied advances",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			advances, err := a.store.GetAdvances(cmd.Context(), a.owner, cardID)
			if err != nil {
				return fmt.Errorf("failed to list advances: %w", err)
			}
			if len(advances) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.SubtitleStyle.Render("No advances found."))
				return nil
			}

			rows := make([][]string, 0, len(advances))
			for _, adv := range advances {
				rows = append(rows, []string{
					adv.ID,
					model.FormatMonth(adv.StatementMonth),
					model.FormatAmount(adv.Amount),
					strconv.Itoa(len(adv.SettledInstallmentIDs)),
					adv.CreatedAt.Format(dateLayout),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderTable([]string{"ID", "Month", "Amount", "Settled", "Created"}, rows))
			return nil
		},
	}

	cmd.Flags().StringVar(&cardID, "card", "", "Card id")
	_ = cmd.MarkFlagRequired("card")

	return cmd
}
