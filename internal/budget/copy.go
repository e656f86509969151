package budget

import (
	"prodbudget-backend/internal/models"

	"gorm.io/gorm"
)

// copyTree duplicates a whole budget tree into a fresh root of dstVariant.
// Row order keys carry over verbatim (they stay valid within the new tables),
// aggregates are left at zero for the caller's recompute, and actuals come
// along only on a budget-to-budget duplicate; templates never carry them.
func copyTree(tx *gorm.DB, src *models.Budget, dstVariant models.Variant, name string, userID uint) (*models.Budget, error) {
	dst := &models.Budget{
		Variant:        dstVariant,
		OwnerID:        userID,
		Name:           name,
		ProductionType: src.ProductionType,
		Image:          src.Image,
		UpdatedByID:    &userID,
	}
	if err := tx.Create(dst).Error; err != nil {
		return nil, err
	}
	withActuals := src.Variant == models.VariantBudget && dstVariant == models.VariantBudget
	withContacts := dstVariant == models.VariantBudget

	fringeMap := map[uint]uint{}
	var fringes []models.Fringe
	if err := tx.Where("budget_id = ?", src.ID).Order(`"order" asc`).Find(&fringes).Error; err != nil {
		return nil, err
	}
	for i := range fringes {
		f := fringes[i]
		old := f.ID
		f.ID = 0
		f.Variant = dstVariant
		f.BudgetID = dst.ID
		f.UpdatedByID = &userID
		if err := tx.Create(&f).Error; err != nil {
			return nil, err
		}
		fringeMap[old] = f.ID
	}

	// Rows are created with a nil group first; groups need their parent rows
	// to exist, and the rows need the groups. The group references are filled
	// in at the end.
	accountMap := map[uint]uint{}
	accountGroup := map[uint]uint{} // new account id -> old group id
	var accounts []models.Account
	if err := tx.Where("budget_id = ?", src.ID).Order(`"order" asc`).Find(&accounts).Error; err != nil {
		return nil, err
	}
	for i := range accounts {
		a := accounts[i]
		old := a.ID
		oldGroup := a.GroupID
		a.ID = 0
		a.Variant = dstVariant
		a.BudgetID = dst.ID
		a.GroupID = nil
		a.UpdatedByID = &userID
		a.AccumulatedFringeContribution = 0
		a.AccumulatedMarkupContribution = 0
		a.AccumulatedValue = 0
		a.Actual = 0
		if err := tx.Create(&a).Error; err != nil {
			return nil, err
		}
		accountMap[old] = a.ID
		if oldGroup != nil {
			accountGroup[a.ID] = *oldGroup
		}
	}

	subMap := map[uint]uint{}
	subGroup := map[uint]uint{}
	var subs []models.SubAccount
	if err := tx.Where("budget_id = ?", src.ID).Order(`"order" asc`).Find(&subs).Error; err != nil {
		return nil, err
	}
	// Parents before children: rows whose parent is already mapped copy each
	// round, until the worklist drains.
	pending := subs
	for len(pending) > 0 {
		var next []models.SubAccount
		progressed := false
		for i := range pending {
			s := pending[i]
			var parentAccount, parentSub *uint
			switch {
			case s.ParentAccountID != nil:
				id := accountMap[*s.ParentAccountID]
				parentAccount = &id
			case s.ParentSubAccountID != nil:
				id, ok := subMap[*s.ParentSubAccountID]
				if !ok {
					next = append(next, s)
					continue
				}
				parentSub = &id
			}
			old := s.ID
			oldGroup := s.GroupID
			s.ID = 0
			s.Variant = dstVariant
			s.BudgetID = dst.ID
			s.ParentAccountID = parentAccount
			s.ParentSubAccountID = parentSub
			s.GroupID = nil
			s.UpdatedByID = &userID
			s.Fringes = nil
			s.Attachments = nil
			s.NominalValue = 0
			s.FringeContribution = 0
			s.MarkupContribution = 0
			s.AccumulatedFringeContribution = 0
			s.AccumulatedMarkupContribution = 0
			s.AccumulatedValue = 0
			s.Actual = 0
			if !withContacts {
				s.ContactID = nil
			}
			if err := tx.Create(&s).Error; err != nil {
				return nil, err
			}
			subMap[old] = s.ID
			if oldGroup != nil {
				subGroup[s.ID] = *oldGroup
			}
			progressed = true
		}
		if !progressed {
			break // orphaned parent reference; nothing more can map
		}
		pending = next
	}

	var joinRows []struct {
		SubAccountID uint `gorm:"column:sub_account_id"`
		FringeID     uint `gorm:"column:fringe_id"`
	}
	if err := tx.Table("sub_account_fringes").
		Where("sub_account_id IN (?)", tx.Model(&models.SubAccount{}).Select("id").Where("budget_id = ?", src.ID)).
		Find(&joinRows).Error; err != nil {
		return nil, err
	}
	for _, jr := range joinRows {
		newSub, ok1 := subMap[jr.SubAccountID]
		newFringe, ok2 := fringeMap[jr.FringeID]
		if !ok1 || !ok2 {
			continue
		}
		if err := tx.Exec("INSERT INTO sub_account_fringes (sub_account_id, fringe_id) VALUES (?, ?)", newSub, newFringe).Error; err != nil {
			return nil, err
		}
	}

	markupMap := map[uint]uint{}
	var markups []models.Markup
	if err := tx.Where("budget_id = ?", src.ID).Find(&markups).Error; err != nil {
		return nil, err
	}
	for i := range markups {
		m := markups[i]
		old := m.ID
		m.ID = 0
		m.Variant = dstVariant
		m.BudgetID = dst.ID
		m.UpdatedByID = &userID
		m.Accounts = nil
		m.SubAccounts = nil
		m.Actual = 0
		if m.ParentAccountID != nil {
			id := accountMap[*m.ParentAccountID]
			m.ParentAccountID = &id
		}
		if m.ParentSubAccountID != nil {
			id := subMap[*m.ParentSubAccountID]
			m.ParentSubAccountID = &id
		}
		if err := tx.Create(&m).Error; err != nil {
			return nil, err
		}
		markupMap[old] = m.ID
	}
	var maRows []struct {
		MarkupID  uint `gorm:"column:markup_id"`
		AccountID uint `gorm:"column:account_id"`
	}
	if err := tx.Table("markup_accounts").
		Where("markup_id IN (?)", tx.Model(&models.Markup{}).Select("id").Where("budget_id = ?", src.ID)).
		Find(&maRows).Error; err != nil {
		return nil, err
	}
	for _, jr := range maRows {
		if err := tx.Exec("INSERT INTO markup_accounts (markup_id, account_id) VALUES (?, ?)",
			markupMap[jr.MarkupID], accountMap[jr.AccountID]).Error; err != nil {
			return nil, err
		}
	}
	var msRows []struct {
		MarkupID     uint `gorm:"column:markup_id"`
		SubAccountID uint `gorm:"column:sub_account_id"`
	}
	if err := tx.Table("markup_sub_accounts").
		Where("markup_id IN (?)", tx.Model(&models.Markup{}).Select("id").Where("budget_id = ?", src.ID)).
		Find(&msRows).Error; err != nil {
		return nil, err
	}
	for _, jr := range msRows {
		if err := tx.Exec("INSERT INTO markup_sub_accounts (markup_id, sub_account_id) VALUES (?, ?)",
			markupMap[jr.MarkupID], subMap[jr.SubAccountID]).Error; err != nil {
			return nil, err
		}
	}

	var groups []models.Group
	if err := tx.Where("budget_id = ?", src.ID).Find(&groups).Error; err != nil {
		return nil, err
	}
	groupMap := map[uint]uint{}
	for i := range groups {
		g := groups[i]
		old := g.ID
		g.ID = 0
		g.Variant = dstVariant
		g.BudgetID = dst.ID
		g.UpdatedByID = &userID
		if g.ParentAccountID != nil {
			id := accountMap[*g.ParentAccountID]
			g.ParentAccountID = &id
		}
		if g.ParentSubAccountID != nil {
			id := subMap[*g.ParentSubAccountID]
			g.ParentSubAccountID = &id
		}
		if err := tx.Create(&g).Error; err != nil {
			return nil, err
		}
		groupMap[old] = g.ID
	}
	for newID, oldGroup := range accountGroup {
		if gid, ok := groupMap[oldGroup]; ok {
			if err := tx.Model(&models.Account{}).Where("id = ?", newID).
				UpdateColumn("group_id", gid).Error; err != nil {
				return nil, err
			}
		}
	}
	for newID, oldGroup := range subGroup {
		if gid, ok := groupMap[oldGroup]; ok {
			if err := tx.Model(&models.SubAccount{}).Where("id = ?", newID).
				UpdateColumn("group_id", gid).Error; err != nil {
				return nil, err
			}
		}
	}

	if withActuals {
		var actuals []models.Actual
		if err := tx.Where("budget_id = ?", src.ID).Order(`"order" asc`).Find(&actuals).Error; err != nil {
			return nil, err
		}
		for i := range actuals {
			a := actuals[i]
			a.ID = 0
			a.BudgetID = dst.ID
			a.UpdatedByID = &userID
			a.Attachments = nil
			switch a.OwnerType {
			case models.ActualOwnerSubAccount:
				a.OwnerID = subMap[a.OwnerID]
			case models.ActualOwnerMarkup:
				a.OwnerID = markupMap[a.OwnerID]
			}
			if err := tx.Create(&a).Error; err != nil {
				return nil, err
			}
		}
	}

	return dst, nil
}
