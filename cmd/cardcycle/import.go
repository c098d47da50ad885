package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Veraticus/cardcycle/internal/cli"
	"github.com/Veraticus/cardcycle/internal/common"
	"github.com/Veraticus/cardcycle/internal/engine"
	"github.com/Veraticus/cardcycle/internal/ofx"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import purchases from statement files",
	}

	cmd.AddCommand(importOFXCmd())

	return cmd
}

func importOFXCmd() *cobra.Command {
	var cardID, month, force string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "ofx [files...]",
		Short: "Import charges from OFX/QFX credit-card statements",
		Long: `Import charges from OFX or QFX credit-card statements exported from your bank.

Charges marked "installment k/n" become purchases of n installments starting
at k. Every charge is checked against the batch and the stored purchases of
the card; duplicates are skipped unless listed in --force by their preview
index.`,
		Example: `  # Preview without writing anything
  cardcycle import ofx --card <card-id> --dry-run ~/Downloads/visa_2025_03.qfx

  # Import, forcing candidates 2 and 5 even though they look like duplicates
  cardcycle import ofx --card <card-id> --force 2,5 ~/Downloads/visa_*.qfx`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := expandFiles(args)
			if err != nil {
				return err
			}
			statementMonth, err := parseMonth(month)
			if err != nil {
				return err
			}
			forced, err := parseIndices(force)
			if err != nil {
				return err
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			parser := ofx.NewParser()
			opts := ofx.Options{OwnerID: a.owner, CardID: cardID, StatementMonth: statementMonth}

			var candidates []engine.Candidate
			for _, path := range files {
				slog.Info("Processing file", "file", filepath.Base(path))
				parsed, err := parseOFXFile(cmd, parser, path, opts)
				if err != nil {
					return err
				}
				candidates = append(candidates, parsed...)
			}

			if len(candidates) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatWarning("No charges found to import"))
				return nil
			}
			for i := range candidates {
				candidates[i].Force = forced[i]
			}

			out := cmd.OutOrStdout()
			preview, err := a.engine.PreviewImport(ctx, a.owner, candidates)
			if err != nil {
				return fmt.Errorf("failed to preview import: %w", err)
			}
			fmt.Fprintln(out, cli.FormatImportPreview(preview, candidates))

			if dryRun || preview.ToImport == 0 {
				return nil
			}

			a.autoCheckpoint(ctx, "import")

			result, err := a.engine.CommitImport(ctx, a.owner, candidates)
			if err != nil {
				return fmt.Errorf("failed to import: %w", err)
			}
			fmt.Fprintln(out, cli.FormatImportResult(result))
			return nil
		},
	}

	cmd.Flags().StringVar(&cardID, "card", "", "Card the statements belong to")
	cmd.Flags().StringVar(&month, "month", "", "Statement month YYYY-MM for every charge (default: resolved from posting date)")
	cmd.Flags().StringVar(&force, "force", "", "Comma separated preview indices to import even when flagged duplicate")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "d", false, "Preview import without saving")
	_ = cmd.MarkFlagRequired("card")

	return cmd
}

func parseOFXFile(cmd *cobra.Command, parser *ofx.Parser, path string, opts ofx.Options) ([]engine.Candidate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	candidates, err := parser.ParseFile(cmd.Context(), f, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(candidates) == 0 {
		slog.Warn("No charges found in file", "file", filepath.Base(path))
	}
	return candidates, nil
}

// expandFiles resolves glob patterns into existing file paths.
func expandFiles(patterns []string) ([]string, error) {
	var files []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		if len(matches) == 0 {
			if _, err := os.Stat(pattern); err == nil {
				files = append(files, pattern)
			} else {
				slog.Warn("No files found matching pattern", "pattern", pattern)
			}
			continue
		}
		files = append(files, matches...)
	}

	if len(files) == 0 {
		return nil, common.NewUserError("No files found to import", common.ErrValidation)
	}
	return files, nil
}
