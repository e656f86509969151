package models

import "time"

// Account is a direct child of a Budget. (budget_id, "order") is unique.
type Account struct {
	ID          uint    `gorm:"primaryKey"`
	Variant     Variant `gorm:"size:16;not null;index"`
	BudgetID    uint    `gorm:"not null;uniqueIndex:idx_accounts_budget_order"`
	Budget      Budget
	Identifier  *string `gorm:"size:128"`
	Description *string `gorm:"size:255"`
	Order       string  `gorm:"column:order;size:1024;not null;uniqueIndex:idx_accounts_budget_order"`
	GroupID     *uint   `gorm:"index"`
	Group       *Group

	AccumulatedFringeContribution float64 `gorm:"not null;default:0"`
	AccumulatedMarkupContribution float64 `gorm:"not null;default:0"`
	AccumulatedValue              float64 `gorm:"not null;default:0"`
	Actual                        float64 `gorm:"not null;default:0"`

	UpdatedByID *uint
	CreatedAt   time.Time
	UpdatedAt   time.Time

	SubAccounts []SubAccount `gorm:"foreignKey:ParentAccountID"`
}
