package engine

import (
	"prodbudget-backend/internal/models"

	"gorm.io/gorm"
)

// Mutation intake. Handlers report row-level events here right after writing;
// each event classifies into the dirty marks that make the affected aggregates
// recompute at flush. Cascading deletes of a subtree never call intake — the
// budget's IsDeleting flag covers that path.

func BudgetRef(id uint) NodeRef  { return NodeRef{Kind: KindBudget, ID: id} }
func AccountRef(id uint) NodeRef { return NodeRef{Kind: KindAccount, ID: id} }
func SubRef(id uint) NodeRef     { return NodeRef{Kind: KindSubAccount, ID: id} }
func MarkupRef(id uint) NodeRef  { return NodeRef{Kind: KindMarkup, ID: id} }

// SubParentRef resolves the tree parent of a sub-account row.
func SubParentRef(sub *models.SubAccount) NodeRef {
	switch {
	case sub.ParentAccountID != nil:
		return AccountRef(*sub.ParentAccountID)
	case sub.ParentSubAccountID != nil:
		return SubRef(*sub.ParentSubAccountID)
	}
	return BudgetRef(sub.BudgetID)
}

// MarkupParentRef resolves the node a markup's table hangs off.
func MarkupParentRef(m *models.Markup) NodeRef {
	return markupParentRef(m, m.BudgetID)
}

// SubAccountChanged: quantity/rate/multiplier/unit edits, and creation.
func (s *Scheduler) SubAccountChanged(sub *models.SubAccount) {
	s.MarkDirty(SubRef(sub.ID))
}

// SubAccountMoved: both the old and the new parent regroup their children.
func (s *Scheduler) SubAccountMoved(oldParent, newParent NodeRef) {
	s.MarkDirty(oldParent)
	s.MarkDirty(newParent)
}

// SubAccountFringesChanged: the row's fringe set was edited.
func (s *Scheduler) SubAccountFringesChanged(subID uint) {
	s.MarkDirty(SubRef(subID))
}

// FringeChanged: rate/cutoff/unit edits touch every sub-account referencing
// the fringe.
func (s *Scheduler) FringeChanged(tx *gorm.DB, fringeID uint) error {
	var rows []subFringeRow
	if err := tx.Table("sub_account_fringes").Where("fringe_id = ?", fringeID).Find(&rows).Error; err != nil {
		return err
	}
	for _, r := range rows {
		s.MarkDirty(SubRef(r.SubAccountID))
	}
	return nil
}

// MarkupChanged: rate/unit edits touch every applied sub-account and the
// markup's parent node.
func (s *Scheduler) MarkupChanged(tx *gorm.DB, m *models.Markup) error {
	var rows []markupSubRow
	if err := tx.Table("markup_sub_accounts").Where("markup_id = ?", m.ID).Find(&rows).Error; err != nil {
		return err
	}
	for _, r := range rows {
		s.MarkDirty(SubRef(r.SubAccountID))
	}
	s.MarkDirty(MarkupParentRef(m))
	return nil
}

// MarkupAppliedChanged: rows entering or leaving the applied set recompute,
// along with the markup's parent.
func (s *Scheduler) MarkupAppliedChanged(m *models.Markup, addedSubs, removedSubs []uint) {
	for _, id := range addedSubs {
		s.MarkDirty(SubRef(id))
	}
	for _, id := range removedSubs {
		s.MarkDirty(SubRef(id))
	}
	s.MarkDirty(MarkupParentRef(m))
}

// ActualChanged: create/update/delete of a spend row. The owner re-sums, and
// the budget's total actual moves with it (the owner mark covers the chain up
// to the root, so one mark suffices).
func (s *Scheduler) ActualChanged(a *models.Actual) {
	if a.OwnerType == models.ActualOwnerMarkup {
		s.MarkDirty(MarkupRef(a.OwnerID))
		return
	}
	s.MarkDirty(SubRef(a.OwnerID))
}

// RowDeleted: an account or sub-account was removed; its former parent loses
// a child.
func (s *Scheduler) RowDeleted(formerParent NodeRef) {
	s.MarkDirty(formerParent)
}
