package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/Veraticus/cardcycle/internal/cli"
	"github.com/Veraticus/cardcycle/internal/common"
	"github.com/Veraticus/cardcycle/internal/engine"
)

func repairCmd() *cobra.Command {
	var schedule string
	var quiet bool

	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Regenerate missing installments",
		Long: `Scan every active purchase and recreate installments missing from its
series. Recreated installments in past months are marked settled.

With --schedule the repair runs once immediately and then on the given cron
schedule until interrupted.`,
		Example: `  # One-off repair
  cardcycle repair

  # Repair every night at 03:00
  cardcycle repair --schedule "0 3 * * *"`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if !cmd.Flags().Changed("schedule") {
				schedule = a.cfg.RepairSchedule
			}
			if schedule == "" {
				return runRepair(cmd.Context(), a, cmd.OutOrStdout(), !quiet)
			}
			return runRepairSchedule(cmd.Context(), a, cmd.OutOrStdout(), schedule)
		},
	}

	cmd.Flags().StringVar(&schedule, "schedule", "", "Cron schedule for repeated repairs (default: repair.schedule from config)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Hide the progress bar")

	return cmd
}

func runRepair(ctx context.Context, a *app, out io.Writer, showProgress bool) error {
	var bar *progressbar.ProgressBar
	var progress engine.ProgressFunc
	if showProgress {
		progress = func(done, total int) {
			if bar == nil {
				bar = newRepairProgressBar(out, total)
			}
			if err := bar.Set(done); err != nil {
				slog.Warn("Failed to update progress bar", "error", err)
			}
		}
	}

	report, err := a.engine.Repair(ctx, a.owner, progress)
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		return fmt.Errorf("repair failed: %w", err)
	}

	fmt.Fprintln(out, cli.FormatRepairReport(report))
	return nil
}

func newRepairProgressBar(out io.Writer, total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(out),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Repairing purchases...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(out); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)
}

// runRepairSchedule runs the repair now and then on schedule until ctx is
// canceled or the process is interrupted. Runs never overlap.
func runRepairSchedule(ctx context.Context, a *app, out io.Writer, schedule string) error {
	parsed, err := cron.ParseStandard(schedule)
	if err != nil {
		return common.NewUserError(fmt.Sprintf("Invalid schedule %q", schedule), err)
	}

	handler := cli.NewInterruptHandler(out, "Repair scheduler")
	ctx = handler.HandleInterrupts(ctx)

	var mu sync.Mutex
	run := func() {
		if !mu.TryLock() {
			slog.Warn("Previous repair still running, skipping this run")
			return
		}
		defer mu.Unlock()
		if err := runRepair(ctx, a, out, false); err != nil {
			slog.Error("Scheduled repair failed", "error", err)
		}
	}

	run()

	scheduler := cron.New()
	scheduler.Schedule(parsed, cron.FuncJob(run))
	scheduler.Start()
	common.LogInfo(ctx, "Repair scheduler started", common.Fields{
		"schedule": schedule,
		"next_run": parsed.Next(time.Now()),
	})

	<-ctx.Done()
	<-scheduler.Stop().Done()
	slog.Info("Repair scheduler stopped")
	return nil
}
