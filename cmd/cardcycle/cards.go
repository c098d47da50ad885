package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/cardcycle/internal/cli"
	"github.com/Veraticus/cardcycle/internal/model"
)

func cardsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cards",
		Short: "Manage credit cards",
		Long: `Add and list credit cards. A card's closing day decides which statement
a purchase is billed on.`,
		Example: `  # Add a card that closes on the 10th and is due on the 20th
  cardcycle cards add --name "Visa" --closing-day 10 --due-day 20

  # List cards
  cardcycle cards list`,
	}

	cmd.AddCommand(addCardCmd())
	cmd.AddCommand(listCardsCmd())

	return cmd
}

func addCardCmd() *cobra.Command {
	var name string
	var closingDay, dueDay int

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a credit card",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			card := &model.Card{
				OwnerID:    a.owner,
				Name:       name,
				ClosingDay: closingDay,
				DueDay:     dueDay,
			}
			if err := a.store.CreateCard(cmd.Context(), card); err != nil {
				return fmt.Errorf("failed to add card: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Added card %s (%s)", card.Name, card.ID)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Card name")
	cmd.Flags().IntVar(&closingDay, "closing-day", 0, "Day of month the statement closes (1-31)")
	cmd.Flags().IntVar(&dueDay, "due-day", 0, "Day of month the statement is due (1-31)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("closing-day")
	_ = cmd.MarkFlagRequired("due-day")

	return cmd
}

func listCardsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List credit cards",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			cards, err := a.store.GetCards(cmd.Context(), a.owner)
			if err != nil {
				return fmt.Errorf("failed to list cards: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatCards(cards))
			return nil
		},
	}
}
