package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/cardcycle/internal/cli"
)

func categoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Manage purchase categories",
		Example: `  cardcycle categories add "Electronics" --description "Phones and gadgets"
  cardcycle categories list`,
	}

	cmd.AddCommand(addCategoryCmd())
	cmd.AddCommand(listCategoriesCmd())

	return cmd
}

func addCategoryCmd() *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			category, err := a.store.CreateCategory(cmd.Context(), a.owner, args[0], description)
			if err != nil {
				return fmt.Errorf("failed to add category: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Added category %s (%d)", category.Name, category.ID)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "", "Category description")

	return cmd
}

func listCategoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List categories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			categories, err := a.store.GetCategories(cmd.Context(), a.owner)
			if err != nil {
				return fmt.Errorf("failed to list categories: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatCategories(categories))
			return nil
		},
	}
}
