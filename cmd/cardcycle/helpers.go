package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/cardcycle/internal/billing"
	"github.com/Veraticus/cardcycle/internal/common"
	"github.com/Veraticus/cardcycle/internal/config"
	"github.com/Veraticus/cardcycle/internal/engine"
	"github.com/Veraticus/cardcycle/internal/model"
	"github.com/Veraticus/cardcycle/internal/storage"
)

const dateLayout = "2006-01-02"

// app bundles what a command needs once configuration is resolved.
type app struct {
	cfg    *config.Config
	store  *storage.SQLiteStorage
	engine *engine.Engine
	owner  string
}

// openApp loads configuration, opens and migrates the database and builds
// the engine. Commands must Close the returned app.
func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	ownerFlag, _ := cmd.Flags().GetString("owner")
	owner, err := cfg.RequireOwner(ownerFlag)
	if err != nil {
		return nil, err
	}

	store, err := initStorage(cmd.Context(), cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	eng := engine.NewWithConfig(store, billing.ClosingDayResolver{}, engine.Config{
		FuzzyTolerance: cfg.FuzzyTolerance,
	})

	return &app{cfg: cfg, store: store, engine: eng, owner: owner}, nil
}

// initStorage opens the database and runs migrations.
func initStorage(ctx context.Context, dbPath string) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		slog.Warn("Failed to close database", "error", err)
	}
}

// autoCheckpoint snapshots the database before a destructive operation.
// Failing to snapshot is logged but never blocks the operation.
func (a *app) autoCheckpoint(ctx context.Context, operation string) {
	manager, err := a.store.NewCheckpointManager()
	if err != nil {
		slog.Debug("Skipping auto checkpoint", "operation", operation, "reason", err)
		return
	}
	info, err := manager.AutoCheckpoint(ctx, operation)
	if err != nil {
		slog.Warn("Failed to create auto checkpoint", "operation", operation, "error", err)
		return
	}
	slog.Info("Created auto checkpoint", "id", info.ID, "operation", operation)
}

// parseDate parses a YYYY-MM-DD flag value. An empty value yields the zero time.
func parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, common.NewUserError(fmt.Sprintf("Invalid date %q, expected YYYY-MM-DD", value), err)
	}
	return t, nil
}

// parseMonth parses a YYYY-MM flag value. An empty value yields the zero time.
func parseMonth(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := model.ParseMonth(value)
	if err != nil {
		return time.Time{}, common.NewUserError(fmt.Sprintf("Invalid month %q, expected YYYY-MM", value), err)
	}
	return t, nil
}

// requireMonth is parseMonth for flags that must be set.
func requireMonth(flag, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, common.NewUserError(fmt.Sprintf("--%s is required", flag), common.ErrValidation)
	}
	return parseMonth(value)
}

// parseIndices parses a comma separated list of non-negative integers.
func parseIndices(value string) (map[int]bool, error) {
	indices := make(map[int]bool)
	if strings.TrimSpace(value) == "" {
		return indices, nil
	}
	for _, part := range strings.Split(value, ",") {
		i, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || i < 0 {
			return nil, common.NewUserError(fmt.Sprintf("Invalid index %q", part), common.ErrValidation)
		}
		indices[i] = true
	}
	return indices, nil
}
