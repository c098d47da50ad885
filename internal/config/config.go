// Package config loads cardcycle settings from the config file, CARDCYCLE_*
// environment variables and command-line flags.
package config

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/Veraticus/cardcycle/internal/common"
)

// DefaultDatabasePath is used when database.path is not configured.
const DefaultDatabasePath = "$HOME/.local/share/cardcycle/cardcycle.db"

// DefaultFuzzyTolerance is the maximum total-amount difference for which two
// otherwise identical purchases are still considered the same.
var DefaultFuzzyTolerance = decimal.RequireFromString("0.10")

// Config is the resolved application configuration.
type Config struct {
	DatabasePath   string
	OwnerID        string
	LogLevel       string
	LogFormat      string
	RepairSchedule string
	FuzzyTolerance decimal.Decimal
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", DefaultDatabasePath)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("import.fuzzy_tolerance", DefaultFuzzyTolerance.String())
	v.SetDefault("repair.schedule", "")
}

// Load reads the configuration from v.
// It follows this precedence:
// 1. Flags bound into viper
// 2. CARDCYCLE_ environment variables
// 3. The config file
// 4. Default values
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	tolerance, err := decimal.NewFromString(strings.TrimSpace(v.GetString("import.fuzzy_tolerance")))
	if err != nil {
		return nil, fmt.Errorf("%w: import.fuzzy_tolerance: %v", common.ErrInvalidConfig, err)
	}
	if !tolerance.IsPositive() {
		return nil, fmt.Errorf("%w: import.fuzzy_tolerance must be positive", common.ErrInvalidConfig)
	}

	cfg := &Config{
		DatabasePath:   ExpandPath(v.GetString("database.path")),
		OwnerID:        strings.TrimSpace(v.GetString("owner.id")),
		LogLevel:       v.GetString("logging.level"),
		LogFormat:      v.GetString("logging.format"),
		RepairSchedule: v.GetString("repair.schedule"),
		FuzzyTolerance: tolerance,
	}

	if cfg.DatabasePath == "" {
		return nil, fmt.Errorf("%w: database.path", common.ErrMissingConfig)
	}

	return cfg, nil
}

// RequireOwner returns the configured owner or an error explaining how to set it.
func (c *Config) RequireOwner(flagValue string) (string, error) {
	if owner := strings.TrimSpace(flagValue); owner != "" {
		return owner, nil
	}
	if c.OwnerID != "" {
		return c.OwnerID, nil
	}
	return "", common.NewUserError("No owner configured; pass --owner or set owner.id", common.ErrMissingConfig)
}
