package models

import "time"

// Budget is the root of an account tree. The same table holds templates;
// the Variant column decides which one a row is.
type Budget struct {
	ID             uint    `gorm:"primaryKey"`
	Variant        Variant `gorm:"size:16;not null;index"`
	OwnerID        uint    `gorm:"index;not null"`
	Owner          User
	Name           string         `gorm:"size:128;not null"`
	ProductionType ProductionType `gorm:"size:32;not null"`
	Image          *string        `gorm:"size:255"`
	Archived       bool           `gorm:"not null;default:false"`
	// IsDeleting suppresses propagation while a cascading delete runs.
	IsDeleting bool `gorm:"not null;default:false"`

	// Aggregates. Never authoritative input; recomputed by the engine.
	NominalValue                  float64 `gorm:"not null;default:0"`
	AccumulatedFringeContribution float64 `gorm:"not null;default:0"`
	AccumulatedMarkupContribution float64 `gorm:"not null;default:0"`
	AccumulatedValue              float64 `gorm:"not null;default:0"`
	Actual                        float64 `gorm:"not null;default:0"` // budget variant only

	UpdatedByID *uint
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Accounts []Account
}
