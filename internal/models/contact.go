package models

import "time"

// Contact is a per-user address-book entry, referenced by budget-variant
// sub-accounts and actuals.
type Contact struct {
	ID      uint `gorm:"primaryKey"`
	OwnerID uint `gorm:"not null;uniqueIndex:idx_contacts_owner_order"`
	Owner   User

	Name  string  `gorm:"size:128;not null"`
	Email *string `gorm:"size:128"`
	Role  *string `gorm:"size:64"` // production role, free-form
	Phone *string `gorm:"size:50"`
	Order string  `gorm:"column:order;size:1024;not null;uniqueIndex:idx_contacts_owner_order"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Attachment is upload metadata hanging off a sub-account or an actual. The
// bytes themselves live elsewhere; only the storage key is recorded here.
type Attachment struct {
	ID           uint    `gorm:"primaryKey"`
	OwnerID      uint    `gorm:"index;not null"`
	SubAccountID *uint   `gorm:"index"`
	ActualID     *uint   `gorm:"index"`
	StorageKey   string  `gorm:"size:64;not null;uniqueIndex"`
	Name         string  `gorm:"size:255;not null"`
	Size         int64   `gorm:"not null"`
	CreatedAt    time.Time
}
