package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/cardcycle/internal/billing"
	"github.com/Veraticus/cardcycle/internal/cli"
)

func statementCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "statement",
		Short: "Inspect card statements",
	}

	var cardID, month string
	show := &cobra.Command{
		Use:   "show",
		Short: "Show the installments and totals of a statement",
		RunE: func(cmd *cobra.Command, _ []string) error {
			statementMonth, err := parseMonth(month)
			if err != nil {
				return err
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			card, err := a.store.GetCard(ctx, a.owner, cardID)
			if err != nil {
				return fmt.Errorf("failed to load card: %w", err)
			}
			if statementMonth.IsZero() {
				if statementMonth, err = (billing.ClosingDayResolver{}).ResolveStatementMonth(time.Now(), card.ClosingDay); err != nil {
					return err
				}
			}

			summary, err := a.engine.StatementSummary(ctx, a.owner, cardID, statementMonth)
			if err != nil {
				return fmt.Errorf("failed to load statement: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatStatement(card, summary))
			return nil
		},
	}
	show.Flags().StringVar(&cardID, "card", "", "Card id")
	show.Flags().StringVar(&month, "month", "", "Statement month YYYY-MM (default: the open statement)")
	_ = show.MarkFlagRequired("card")
	cmd.AddCommand(show)

	return cmd
}
