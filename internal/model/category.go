package model

import "time"

// Category groups purchases for reporting.
type Category struct {
	CreatedAt   time.Time
	OwnerID     string
	Name        string
	Description string
	ID          int64
	IsActive    bool
}
