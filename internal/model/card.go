package model

import (
	"strings"
	"time"

	"github.com/Veraticus/cardcycle/internal/common"
)

// Card is a credit card whose charges are grouped into monthly statements.
type Card struct {
	CreatedAt  time.Time
	ID         string
	OwnerID    string
	Name       string
	ClosingDay int
	DueDay     int
	IsActive   bool
}

// Validate checks the card fields.
func (c *Card) Validate() error {
	if strings.TrimSpace(c.OwnerID) == "" {
		return common.NewValidationError("owner_id", "is required")
	}
	if strings.TrimSpace(c.Name) == "" {
		return common.NewValidationError("name", "is required")
	}
	if c.ClosingDay < 1 || c.ClosingDay > 31 {
		return common.NewValidationError("closing_day", "must be between 1 and 31")
	}
	if c.DueDay < 1 || c.DueDay > 31 {
		return common.NewValidationError("due_day", "must be between 1 and 31")
	}
	return nil
}
