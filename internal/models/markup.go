package models

import "time"

type MarkupUnit string

const (
	MarkupUnitPercent MarkupUnit = "percent"
	MarkupUnitFlat    MarkupUnit = "flat"
)

// Markup applies to a set of sibling rows of one table. A budget-level markup
// (both parent ids nil) applies to Accounts; a markup parented under an Account
// or SubAccount applies to that node's SubAccount children. Percent markups
// contribute rate x the applied rows' accumulated value; flat markups split
// their rate evenly across the applied rows.
type Markup struct {
	ID                 uint    `gorm:"primaryKey"`
	Variant            Variant `gorm:"size:16;not null;index"`
	BudgetID           uint    `gorm:"index;not null"`
	ParentAccountID    *uint   `gorm:"index"`
	ParentSubAccountID *uint   `gorm:"index"`

	Identifier  *string `gorm:"size:128"`
	Description *string `gorm:"size:255"`
	Rate        *float64
	Unit        MarkupUnit `gorm:"size:16;not null"`

	Accounts    []Account    `gorm:"many2many:markup_accounts"`
	SubAccounts []SubAccount `gorm:"many2many:markup_sub_accounts"`

	// A markup can own actuals directly (budget variant).
	Actual float64 `gorm:"not null;default:0"`

	UpdatedByID *uint
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
