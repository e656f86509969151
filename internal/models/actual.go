package models

import "time"

type ActualOwnerType string

const (
	ActualOwnerSubAccount ActualOwnerType = "subaccount"
	ActualOwnerMarkup     ActualOwnerType = "markup"
)

// Actual records realized spend against one SubAccount or one Markup.
// Budget variant only; templates never carry actuals.
type Actual struct {
	ID        uint `gorm:"primaryKey"`
	BudgetID  uint `gorm:"not null;uniqueIndex:idx_actuals_budget_order"`
	OwnerType ActualOwnerType `gorm:"size:16;not null;index:idx_actuals_owner"`
	OwnerID   uint            `gorm:"not null;index:idx_actuals_owner"`

	Name       *string `gorm:"size:128"`
	Value      *float64
	Date       *time.Time
	Notes      *string `gorm:"size:512"`
	ContactID  *uint
	Contact    *Contact
	ActualType *string `gorm:"size:64"`
	Order      string  `gorm:"column:order;size:1024;not null;uniqueIndex:idx_actuals_budget_order"`

	Attachments []Attachment `gorm:"foreignKey:ActualID"`

	UpdatedByID *uint
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
