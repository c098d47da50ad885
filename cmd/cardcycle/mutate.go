package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/cardcycle/internal/cli"
	"github.com/Veraticus/cardcycle/internal/common"
	"github.com/Veraticus/cardcycle/internal/engine"
	"github.com/Veraticus/cardcycle/internal/model"
)

func parseReverseScope(value string) (engine.ReverseScope, error) {
	switch strings.ReplaceAll(strings.ToLower(value), "-", "_") {
	case "this", string(engine.ReverseThisInstallment):
		return engine.ReverseThisInstallment, nil
	case "future", string(engine.ReverseThisAndFuture):
		return engine.ReverseThisAndFuture, nil
	}
	return "", common.NewUserError(fmt.Sprintf("Unknown scope %q, expected this-installment or this-and-future", value), common.ErrValidation)
}

func reverseCmd() *cobra.Command {
	var scope string

	cmd := &cobra.Command{
		Use:   "reverse <installment-id>",
		Short: "Reverse an installment, or it and every later one",
		Long: `Create a reversal purchase whose negative installments cancel the chosen
installment (this-installment) or the chosen one and every later one
(this-and-future). The original purchase is left untouched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reverseScope, err := parseReverseScope(scope)
			if err != nil {
				return err
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if reverseScope == engine.ReverseThisAndFuture {
				a.autoCheckpoint(ctx, "reverse")
			}

			series, err := a.engine.ReverseInstallment(ctx, a.owner, args[0], reverseScope)
			if err != nil {
				return fmt.Errorf("failed to reverse installment: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Reversal %s cancels %d installments totalling %s",
				series.Purchase.ID, len(series.Installments), model.FormatAmount(series.Purchase.TotalAmount))))
			return nil
		},
	}

	cmd.Flags().StringVar(&scope, "scope", "this-installment", "this-installment or this-and-future")

	return cmd
}

func adjustCmd() *cobra.Command {
	var cardID, month, date, amount, description, kind string
	var settled bool

	cmd := &cobra.Command{
		Use:   "adjust",
		Short: "Apply a manual credit or debit to a statement",
		Example: `  # A 25.00 refund credited on the March statement
  cardcycle adjust --card <card-id> --month 2025-03 --amount 25 --type credit -d "Refund"`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			value, err := amountFlag("amount", amount)
			if err != nil {
				return err
			}
			statementMonth, err := parseMonth(month)
			if err != nil {
				return err
			}
			adjustmentDate, err := parseDate(date)
			if err != nil {
				return err
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			series, err := a.engine.CreateAdjustment(cmd.Context(), a.owner, engine.AdjustmentInput{
				StatementMonth: statementMonth,
				Date:           adjustmentDate,
				Amount:         value,
				CardID:         cardID,
				Description:    description,
				Type:           model.AdjustmentType(kind),
				Settled:        settled,
			})
			if err != nil {
				return fmt.Errorf("failed to create adjustment: %w", err)
			}

			inst := series.Installments[0]
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Adjustment %s of %s on %s",
				series.Purchase.ID, model.FormatAmount(inst.Value), model.FormatMonth(inst.StatementMonth))))
			return nil
		},
	}

	cmd.Flags().StringVar(&cardID, "card", "", "Card id")
	cmd.Flags().StringVar(&month, "month", "", "Statement month YYYY-MM (default: resolved from date)")
	cmd.Flags().StringVar(&date, "date", "", "Adjustment date YYYY-MM-DD (default: today)")
	cmd.Flags().StringVar(&amount, "amount", "", "Adjustment amount")
	cmd.Flags().StringVarP(&description, "description", "d", "", "Description (default: Manual credit|debit)")
	cmd.Flags().StringVar(&kind, "type", string(model.AdjustmentCredit), "credit or debit")
	cmd.Flags().BoolVar(&settled, "settled", false, "Record the adjustment as already settled")
	_ = cmd.MarkFlagRequired("card")

	return cmd
}

func settleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settle",
		Short: "Mark installments as settled",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "installment <installment-id>",
		Short: "Settle a single installment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.engine.SetInstallmentSettled(cmd.Context(), a.owner, args[0], true); err != nil {
				return fmt.Errorf("failed to settle installment: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Installment "+args[0]+" settled"))
			return nil
		},
	})

	var cardID, month string
	statement := &cobra.Command{
		Use:   "statement",
		Short: "Settle every unsettled installment on a card statement",
		RunE: func(cmd *cobra.Command, _ []string) error {
			statementMonth, err := requireMonth("month", month)
			if err != nil {
				return err
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ids, err := a.engine.SettleStatement(cmd.Context(), a.owner, cardID, statementMonth)
			if err != nil {
				return fmt.Errorf("failed to settle statement: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Settled %d installments on %s", len(ids), model.FormatMonth(statementMonth))))
			if len(ids) > 0 {
				fmt.Fprintln(out, cli.SubtleStyle.Render("Undo with: cardcycle unsettle "+strings.Join(ids, " ")))
			}
			return nil
		},
	}
	statement.Flags().StringVar(&cardID, "card", "", "Card id")
	statement.Flags().StringVar(&month, "month", "", "Statement month YYYY-MM")
	_ = statement.MarkFlagRequired("card")
	cmd.AddCommand(statement)

	return cmd
}

func unsettleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unsettle <installment-id>...",
		Short: "Mark installments as unsettled again",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.engine.UnsettleInstallments(cmd.Context(), a.owner, args); err != nil {
				return fmt.Errorf("failed to unsettle installments: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Unsettled %d installments", len(args))))
			return nil
		},
	}
}
