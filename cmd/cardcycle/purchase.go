package main

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/Veraticus/cardcycle/internal/cli"
	"github.com/Veraticus/cardcycle/internal/common"
	"github.com/Veraticus/cardcycle/internal/engine"
	"github.com/Veraticus/cardcycle/internal/model"
	"github.com/Veraticus/cardcycle/internal/service"
)

func purchaseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "purchase",
		Aliases: []string{"purchases"},
		Short:   "Record and manage purchases",
		Long: `Record purchases and manage their installment series.

The total is always the whole purchase value. A purchase of 1200.00 in 12
installments produces twelve installments of 100.00 on consecutive statements.`,
		Example: `  # A phone bought in 10 installments
  cardcycle purchase add --card <card-id> -d "Phone" --total 1000 --installments 10 --date 2025-03-05

  # Starting at installment 4 because the first three were billed elsewhere
  cardcycle purchase add --card <card-id> -d "Laptop" --total 2400 --installments 12 --start 4

  # Change the total; settled installments keep their value
  cardcycle purchase edit <purchase-id> --total 1200

  # Retire or permanently remove a purchase
  cardcycle purchase delete <purchase-id> --scope purge`,
	}

	cmd.AddCommand(addPurchaseCmd())
	cmd.AddCommand(editPurchaseCmd())
	cmd.AddCommand(deletePurchaseCmd())
	cmd.AddCommand(showPurchaseCmd())
	cmd.AddCommand(listPurchasesCmd())

	return cmd
}

func addPurchaseCmd() *cobra.Command {
	var (
		cardID, description, total, date, month, kind, payer string
		installments, start                                 int
		categoryID                                          int64
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a purchase and expand its installments",
		RunE: func(cmd *cobra.Command, _ []string) error {
			amount, err := model.ParseAmount(total)
			if err != nil {
				return common.NewUserError("Invalid --total", err)
			}
			purchaseDate, err := parseDate(date)
			if err != nil {
				return err
			}
			if purchaseDate.IsZero() {
				purchaseDate = time.Now()
			}
			statementMonth, err := parseMonth(month)
			if err != nil {
				return err
			}

			p := model.Purchase{
				CardID:           cardID,
				Description:      description,
				TotalAmount:      amount,
				InstallmentCount: installments,
				StartIndex:       start,
				PurchaseDate:     purchaseDate,
				StatementMonth:   statementMonth,
				Kind:             model.PurchaseKind(kind),
				PayerRef:         payer,
			}
			if cmd.Flags().Changed("category") {
				p.CategoryID = &categoryID
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			series, err := a.engine.CreatePurchase(cmd.Context(), a.owner, p)
			if err != nil {
				return fmt.Errorf("failed to add purchase: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Recorded %s with %d installments", series.Purchase.Description, len(series.Installments))))
			fmt.Fprintln(out, cli.FormatPurchase(&engine.PurchaseDetails{Series: *series, State: model.StateActive}))
			return nil
		},
	}

	cmd.Flags().StringVar(&cardID, "card", "", "Card id")
	cmd.Flags().StringVarP(&description, "description", "d", "", "Description")
	cmd.Flags().StringVar(&total, "total", "", "Total purchase amount")
	cmd.Flags().IntVarP(&installments, "installments", "n", 1, "Number of installments")
	cmd.Flags().IntVar(&start, "start", 1, "First installment index to create")
	cmd.Flags().StringVar(&date, "date", "", "Purchase date YYYY-MM-DD (default: today)")
	cmd.Flags().StringVar(&month, "month", "", "Statement month of the first created installment, YYYY-MM (default: resolved from date)")
	cmd.Flags().StringVar(&kind, "kind", "", "single, installment or recurring (default: from installments)")
	cmd.Flags().StringVar(&payer, "payer", "", "Free text payer reference")
	cmd.Flags().Int64Var(&categoryID, "category", 0, "Category id")
	_ = cmd.MarkFlagRequired("card")
	_ = cmd.MarkFlagRequired("description")
	_ = cmd.MarkFlagRequired("total")

	return cmd
}

func editPurchaseCmd() *cobra.Command {
	var (
		description, total, month, payer string
		installments, start              int
		categoryID                       int64
	)

	cmd := &cobra.Command{
		Use:   "edit <purchase-id>",
		Short: "Edit a purchase, keeping settled installments intact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch engine.PurchasePatch
			flags := cmd.Flags()

			if flags.Changed("description") {
				patch.Description = &description
			}
			if flags.Changed("payer") {
				patch.PayerRef = &payer
			}
			if flags.Changed("category") {
				patch.CategoryID = &categoryID
			}
			if flags.Changed("total") {
				amount, err := model.ParseAmount(total)
				if err != nil {
					return common.NewUserError("Invalid --total", err)
				}
				patch.TotalAmount = &amount
			}
			if flags.Changed("installments") {
				patch.InstallmentCount = &installments
			}
			if flags.Changed("start") {
				patch.StartIndex = &start
			}
			if flags.Changed("month") {
				m, err := requireMonth("month", month)
				if err != nil {
					return err
				}
				patch.StatementMonth = &m
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.engine.EditPurchase(cmd.Context(), a.owner, args[0], patch); err != nil {
				return fmt.Errorf("failed to edit purchase: %w", err)
			}

			details, err := a.engine.DescribePurchase(cmd.Context(), a.owner, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Purchase updated"))
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatPurchase(details))
			return nil
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "", "New description")
	cmd.Flags().StringVar(&total, "total", "", "New total amount")
	cmd.Flags().IntVarP(&installments, "installments", "n", 0, "New number of installments")
	cmd.Flags().IntVar(&start, "start", 0, "New first installment index")
	cmd.Flags().StringVar(&month, "month", "", "New statement month of the first created installment, YYYY-MM")
	cmd.Flags().StringVar(&payer, "payer", "", "New payer reference")
	cmd.Flags().Int64Var(&categoryID, "category", 0, "New category id")

	return cmd
}

func deletePurchaseCmd() *cobra.Command {
	var scope string
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <purchase-id>",
		Short: "Retire or purge a purchase",
		Long: `Delete a purchase with an explicit scope.

  retire  marks the purchase and its installments inactive (default)
  purge   permanently removes the purchase, its installments and any
          reversals of it; refused while any of them is settled`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deleteScope := engine.DeleteScope(scope)
			ctx := cmd.Context()

			if deleteScope == engine.DeletePurge {
				prompter := cli.NewPrompter(cmd.InOrStdin(), cmd.OutOrStdout(), yes)
				ok, err := prompter.Confirm(ctx, fmt.Sprintf("Permanently remove purchase %s?", args[0]))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), cli.SubtitleStyle.Render("Deletion cancelled."))
					return nil
				}
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if deleteScope == engine.DeletePurge {
				a.autoCheckpoint(ctx, "purge")
			}

			if err := a.engine.DeletePurchase(ctx, a.owner, args[0], deleteScope); err != nil {
				return fmt.Errorf("failed to delete purchase: %w", err)
			}

			done := "retired"
			if deleteScope == engine.DeletePurge {
				done = "purged"
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Purchase %s %s", args[0], done)))
			return nil
		},
	}

	cmd.Flags().StringVar(&scope, "scope", string(engine.DeleteRetire), "retire or purge")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation prompt")

	return cmd
}

func showPurchaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <purchase-id>",
		Short: "Show a purchase with its installments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			details, err := a.engine.DescribePurchase(cmd.Context(), a.owner, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatPurchase(details))
			return nil
		},
	}
}

func listPurchasesCmd() *cobra.Command {
	var cardID string
	var kinds []string
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List purchases",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			filter := service.PurchaseFilter{
				OwnerID:    a.owner,
				CardID:     cardID,
				ActiveOnly: !all,
			}
			for _, k := range kinds {
				kind := model.PurchaseKind(k)
				if !kind.Valid() {
					return common.NewUserError(fmt.Sprintf("Unknown kind %q", k), common.ErrValidation)
				}
				filter.Kinds = append(filter.Kinds, kind)
			}

			purchases, err := a.store.GetPurchases(cmd.Context(), filter)
			if err != nil {
				return fmt.Errorf("failed to list purchases: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatPurchases(purchases))
			return nil
		},
	}

	cmd.Flags().StringVar(&cardID, "card", "", "Only purchases on this card")
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "Only these kinds (single, installment, recurring, adjustment, reversal)")
	cmd.Flags().BoolVar(&all, "all", false, "Include retired purchases")

	return cmd
}

// amountFlag parses a required decimal flag.
func amountFlag(name, value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, common.NewUserError(fmt.Sprintf("--%s is required", name), common.ErrValidation)
	}
	amount, err := model.ParseAmount(value)
	if err != nil {
		return decimal.Zero, common.NewUserError(fmt.Sprintf("Invalid --%s", name), err)
	}
	return amount, nil
}
