package engine

import (
	"fmt"

	"prodbudget-backend/internal/models"

	"gorm.io/gorm"
)

// CheckVariant rejects attaching a row of one variant under a tree of the
// other.
func CheckVariant(expected, got models.Variant) error {
	if expected != got {
		return fmt.Errorf("%w: %s attached under %s tree", ErrCrossDomain, got, expected)
	}
	return nil
}

// ValidateFringeRefs verifies every fringe id belongs to the given budget and
// variant before it may be attached to one of its sub-accounts.
func ValidateFringeRefs(tx *gorm.DB, budgetID uint, variant models.Variant, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	var fringes []models.Fringe
	if err := tx.Where("id IN ?", ids).Find(&fringes).Error; err != nil {
		return err
	}
	if len(fringes) != len(ids) {
		return fmt.Errorf("%w: unknown fringe", ErrInvalidReference)
	}
	for _, f := range fringes {
		if f.BudgetID != budgetID {
			return fmt.Errorf("%w: fringe %d belongs to budget %d", ErrInvalidReference, f.ID, f.BudgetID)
		}
		if err := CheckVariant(variant, f.Variant); err != nil {
			return err
		}
	}
	return nil
}

// ValidateMarkupApplied verifies an applied set: rows must belong to the
// markup's budget and be siblings of the markup's own table — accounts for a
// budget-level markup, children of the markup's parent otherwise.
func ValidateMarkupApplied(tx *gorm.DB, m *models.Markup, accountIDs, subIDs []uint) error {
	parent := MarkupParentRef(m)
	if parent.Kind == KindBudget {
		if len(subIDs) > 0 {
			return fmt.Errorf("%w: budget-level markup applies to accounts only", ErrInvalidReference)
		}
		var accounts []models.Account
		if err := tx.Where("id IN ?", accountIDs).Find(&accounts).Error; err != nil {
			return err
		}
		if len(accounts) != len(accountIDs) {
			return fmt.Errorf("%w: unknown account", ErrInvalidReference)
		}
		for _, a := range accounts {
			if a.BudgetID != m.BudgetID {
				return fmt.Errorf("%w: account %d belongs to budget %d", ErrInvalidReference, a.ID, a.BudgetID)
			}
			if err := CheckVariant(m.Variant, a.Variant); err != nil {
				return err
			}
		}
		return nil
	}

	if len(accountIDs) > 0 {
		return fmt.Errorf("%w: nested markup applies to sub-accounts only", ErrInvalidReference)
	}
	var subs []models.SubAccount
	if err := tx.Where("id IN ?", subIDs).Find(&subs).Error; err != nil {
		return err
	}
	if len(subs) != len(subIDs) {
		return fmt.Errorf("%w: unknown sub-account", ErrInvalidReference)
	}
	for _, sub := range subs {
		if sub.BudgetID != m.BudgetID {
			return fmt.Errorf("%w: sub-account %d belongs to budget %d", ErrInvalidReference, sub.ID, sub.BudgetID)
		}
		if err := CheckVariant(m.Variant, sub.Variant); err != nil {
			return err
		}
		if SubParentRef(&sub) != parent {
			return fmt.Errorf("%w: sub-account %d is not a sibling of markup %d's table", ErrInvalidReference, sub.ID, m.ID)
		}
	}
	return nil
}

// ValidateContactRef verifies the contact belongs to the requesting user.
func ValidateContactRef(tx *gorm.DB, userID, contactID uint) error {
	var c models.Contact
	if err := tx.First(&c, contactID).Error; err != nil {
		return fmt.Errorf("%w: unknown contact", ErrInvalidReference)
	}
	if c.OwnerID != userID {
		return fmt.Errorf("%w: contact %d belongs to another user", ErrInvalidReference, contactID)
	}
	return nil
}

// WouldCycle walks the parent chain from newParentSubID; moving subID under a
// node of its own subtree is forbidden.
func WouldCycle(tx *gorm.DB, subID, newParentSubID uint) (bool, error) {
	cur := newParentSubID
	for cur != 0 {
		if cur == subID {
			return true, nil
		}
		var row models.SubAccount
		if err := tx.Select("id", "parent_sub_account_id").First(&row, cur).Error; err != nil {
			return false, err
		}
		if row.ParentSubAccountID == nil {
			break
		}
		cur = *row.ParentSubAccountID
	}
	return false, nil
}
