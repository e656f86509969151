package models

import "time"

// Group is a purely visual grouping of sibling rows. It carries no aggregate
// semantics; the sweep task deletes groups nothing points at anymore.
type Group struct {
	ID                 uint    `gorm:"primaryKey"`
	Variant            Variant `gorm:"size:16;not null;index"`
	BudgetID           uint    `gorm:"index;not null"`
	ParentAccountID    *uint   `gorm:"index"`
	ParentSubAccountID *uint   `gorm:"index"`
	Name               string  `gorm:"size:128;not null"`
	Color              *string `gorm:"size:16"`

	UpdatedByID *uint
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
