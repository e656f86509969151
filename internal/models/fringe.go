package models

import "time"

type FringeUnit string

const (
	FringeUnitPercent FringeUnit = "percent"
	FringeUnitFlat    FringeUnit = "flat"
)

// Fringe is an additive cost layered over the sub-accounts that reference it.
// Percent fringes apply their rate to the sub-account's nominal value up to an
// optional monetary cutoff; flat fringes contribute their rate as-is.
type Fringe struct {
	ID       uint    `gorm:"primaryKey"`
	Variant  Variant `gorm:"size:16;not null;index"`
	BudgetID uint    `gorm:"not null;uniqueIndex:idx_fringes_budget_order"`
	Budget   Budget
	Name     string     `gorm:"size:128;not null"`
	Rate     *float64
	Cutoff   *float64
	Unit     FringeUnit `gorm:"size:16;not null"`
	Color    *string    `gorm:"size:16"`
	Order    string     `gorm:"column:order;size:1024;not null;uniqueIndex:idx_fringes_budget_order"`

	UpdatedByID *uint
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
