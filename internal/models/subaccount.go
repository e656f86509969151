package models

import "time"

// SubAccount nests under an Account or under another SubAccount, to arbitrary
// depth. Exactly one of ParentAccountID / ParentSubAccountID is set. BudgetID
// is denormalized so same-budget reference checks don't have to walk the tree.
type SubAccount struct {
	ID                 uint    `gorm:"primaryKey"`
	Variant            Variant `gorm:"size:16;not null;index"`
	BudgetID           uint    `gorm:"index;not null"`
	ParentAccountID    *uint   `gorm:"index"`
	ParentSubAccountID *uint   `gorm:"index"`

	Identifier  *string  `gorm:"size:128"`
	Description *string  `gorm:"size:255"`
	Quantity    *float64
	Rate        *float64
	Multiplier  *float64
	UnitID      *uint `gorm:"index"`
	Unit        *SubAccountUnit
	Order       string `gorm:"column:order;size:1024;not null;index"`
	GroupID     *uint  `gorm:"index"`
	Group       *Group
	ContactID   *uint // budget variant only
	Contact     *Contact

	Fringes     []Fringe     `gorm:"many2many:sub_account_fringes"`
	Attachments []Attachment `gorm:"foreignKey:SubAccountID"` // budget variant only

	NominalValue                  float64 `gorm:"not null;default:0"`
	FringeContribution            float64 `gorm:"not null;default:0"`
	MarkupContribution            float64 `gorm:"not null;default:0"`
	AccumulatedFringeContribution float64 `gorm:"not null;default:0"`
	AccumulatedMarkupContribution float64 `gorm:"not null;default:0"`
	AccumulatedValue              float64 `gorm:"not null;default:0"`
	Actual                        float64 `gorm:"not null;default:0"` // budget variant only

	UpdatedByID *uint
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Children []SubAccount `gorm:"foreignKey:ParentSubAccountID"`
}

// SubAccountUnit is a per-user tag (e.g. "days", "weeks") referenced by
// sub-account rows.
type SubAccountUnit struct {
	ID        uint   `gorm:"primaryKey"`
	OwnerID   uint   `gorm:"index;not null"`
	Name      string `gorm:"size:64;not null"`
	Color     *string `gorm:"size:16"`
	Order     string `gorm:"column:order;size:1024;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
