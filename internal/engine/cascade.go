package engine

import (
	"prodbudget-backend/internal/models"

	"gorm.io/gorm"
)

// Cascading deletes. Descendant rows are removed directly, without intake:
// the subtree is going away, so marking the doomed rows dirty would only
// schedule work for nodes that no longer exist. Callers mark the surviving
// former parent themselves.

// collectSubtree gathers subID and every descendant sub-account id,
// breadth-first.
func collectSubtree(tx *gorm.DB, subIDs []uint) ([]uint, error) {
	all := append([]uint{}, subIDs...)
	frontier := subIDs
	for len(frontier) > 0 {
		var next []uint
		if err := tx.Model(&models.SubAccount{}).
			Where("parent_sub_account_id IN ?", frontier).
			Pluck("id", &next).Error; err != nil {
			return nil, err
		}
		all = append(all, next...)
		frontier = next
	}
	return all, nil
}

// deleteActuals removes a set of actuals together with their attachments.
func deleteActuals(tx *gorm.DB, ownerType models.ActualOwnerType, ownerIDs []uint) error {
	var actualIDs []uint
	if err := tx.Model(&models.Actual{}).
		Where("owner_type = ? AND owner_id IN ?", ownerType, ownerIDs).
		Pluck("id", &actualIDs).Error; err != nil {
		return err
	}
	if len(actualIDs) == 0 {
		return nil
	}
	if err := tx.Where("actual_id IN ?", actualIDs).Delete(&models.Attachment{}).Error; err != nil {
		return err
	}
	return tx.Where("id IN ?", actualIDs).Delete(&models.Actual{}).Error
}

// deleteSubRows removes everything hanging off a set of sub-account ids:
// actuals, attachments, markups parented there (with their actuals), groups,
// then the rows themselves. Join rows go via their delete cascades.
func deleteSubRows(tx *gorm.DB, subIDs []uint) error {
	if len(subIDs) == 0 {
		return nil
	}
	if err := deleteActuals(tx, models.ActualOwnerSubAccount, subIDs); err != nil {
		return err
	}
	if err := tx.Where("sub_account_id IN ?", subIDs).Delete(&models.Attachment{}).Error; err != nil {
		return err
	}
	var markupIDs []uint
	if err := tx.Model(&models.Markup{}).Where("parent_sub_account_id IN ?", subIDs).
		Pluck("id", &markupIDs).Error; err != nil {
		return err
	}
	if err := deleteMarkups(tx, markupIDs); err != nil {
		return err
	}
	if err := tx.Where("parent_sub_account_id IN ?", subIDs).Delete(&models.Group{}).Error; err != nil {
		return err
	}
	return tx.Where("id IN ?", subIDs).Delete(&models.SubAccount{}).Error
}

func deleteMarkups(tx *gorm.DB, markupIDs []uint) error {
	if len(markupIDs) == 0 {
		return nil
	}
	if err := deleteActuals(tx, models.ActualOwnerMarkup, markupIDs); err != nil {
		return err
	}
	return tx.Where("id IN ?", markupIDs).Delete(&models.Markup{}).Error
}

// DeleteMarkupCascade removes one markup, its join rows and its actuals.
func DeleteMarkupCascade(tx *gorm.DB, markupID uint) error {
	if err := tx.Exec("DELETE FROM markup_accounts WHERE markup_id = ?", markupID).Error; err != nil {
		return err
	}
	if err := tx.Exec("DELETE FROM markup_sub_accounts WHERE markup_id = ?", markupID).Error; err != nil {
		return err
	}
	return deleteMarkups(tx, []uint{markupID})
}

// DeleteSubAccountCascade removes one sub-account and its whole subtree.
func DeleteSubAccountCascade(tx *gorm.DB, subID uint) error {
	subIDs, err := collectSubtree(tx, []uint{subID})
	if err != nil {
		return err
	}
	return deleteSubRows(tx, subIDs)
}

// DeleteAccountCascade removes an account, its sub-account tree and the
// markups and groups parented at the account.
func DeleteAccountCascade(tx *gorm.DB, accountID uint) error {
	var topSubs []uint
	if err := tx.Model(&models.SubAccount{}).Where("parent_account_id = ?", accountID).
		Pluck("id", &topSubs).Error; err != nil {
		return err
	}
	subIDs, err := collectSubtree(tx, topSubs)
	if err != nil {
		return err
	}
	if err := deleteSubRows(tx, subIDs); err != nil {
		return err
	}
	var markupIDs []uint
	if err := tx.Model(&models.Markup{}).Where("parent_account_id = ?", accountID).
		Pluck("id", &markupIDs).Error; err != nil {
		return err
	}
	if err := deleteMarkups(tx, markupIDs); err != nil {
		return err
	}
	if err := tx.Where("parent_account_id = ?", accountID).Delete(&models.Group{}).Error; err != nil {
		return err
	}
	return tx.Delete(&models.Account{}, accountID).Error
}

// DeleteBudgetCascade removes the entire tree. The budget row is flagged
// IsDeleting first so any boundary already holding marks flushes nothing.
func DeleteBudgetCascade(tx *gorm.DB, budgetID uint) error {
	if err := tx.Model(&models.Budget{}).Where("id = ?", budgetID).
		UpdateColumn("is_deleting", true).Error; err != nil {
		return err
	}
	var actualIDs []uint
	if err := tx.Model(&models.Actual{}).Where("budget_id = ?", budgetID).
		Pluck("id", &actualIDs).Error; err != nil {
		return err
	}
	if len(actualIDs) > 0 {
		if err := tx.Where("actual_id IN ?", actualIDs).Delete(&models.Attachment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("id IN ?", actualIDs).Delete(&models.Actual{}).Error; err != nil {
			return err
		}
	}
	var subIDs []uint
	if err := tx.Model(&models.SubAccount{}).Where("budget_id = ?", budgetID).
		Pluck("id", &subIDs).Error; err != nil {
		return err
	}
	if len(subIDs) > 0 {
		if err := tx.Where("sub_account_id IN ?", subIDs).Delete(&models.Attachment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("id IN ?", subIDs).Delete(&models.SubAccount{}).Error; err != nil {
			return err
		}
	}
	for _, step := range []any{&models.Markup{}, &models.Group{}, &models.Fringe{}, &models.Account{}} {
		if err := tx.Where("budget_id = ?", budgetID).Delete(step).Error; err != nil {
			return err
		}
	}
	return tx.Delete(&models.Budget{}, budgetID).Error
}
