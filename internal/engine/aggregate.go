package engine

import (
	"prodbudget-backend/internal/models"
)

// Aggregation rules. Every aggregate is a pure function of the node's own
// attributes and its immediate children's aggregates:
//
//   leaf sub-account:  nominal = quantity x rate x multiplier; fringes apply
//                      to nominal (percent up to cutoff, flat as-is); markups
//                      applied to the row contribute rate x accumulated value
//                      (percent) or an even split of the rate (flat).
//   parent node:       accumulated value = sum of child accumulated value,
//                      fringe and markup contributions; own quantity/rate are
//                      ignored.
//   budget root:       accounts roll up as above, then budget-level markups
//                      (applied to accounts) are added on top.
//
// Summation is left-to-right in order-key sequence and no rounding is ever
// applied, so recomputing an unchanged tree is bit-identical.

func val(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

// Recompute recalculates ref's aggregates in place from the snapshot. Children
// must have been recomputed first; the scheduler guarantees that by flushing
// leaves before parents.
func (snap *Snapshot) Recompute(ref NodeRef) {
	switch ref.Kind {
	case KindSubAccount:
		if sub, ok := snap.Subs[ref.ID]; ok {
			snap.computeSubAccount(sub)
		}
	case KindAccount:
		for _, a := range snap.Accounts {
			if a.ID == ref.ID {
				snap.computeAccount(a)
			}
		}
	case KindMarkup:
		if m, ok := snap.Markups[ref.ID]; ok {
			snap.computeMarkup(m)
		}
	case KindBudget:
		snap.computeBudget()
	}
}

func (snap *Snapshot) computeSubAccount(sub *models.SubAccount) {
	ref := NodeRef{Kind: KindSubAccount, ID: sub.ID}
	children := snap.SubChildren[sub.ID]

	if len(children) == 0 {
		sub.NominalValue = val(sub.Quantity, 0) * val(sub.Rate, 0) * val(sub.Multiplier, 1)
		sub.AccumulatedValue = sub.NominalValue
		sub.FringeContribution = snap.fringeContribution(sub)
		sub.MarkupContribution = snap.markupContribution(sub)
		sub.AccumulatedFringeContribution = sub.FringeContribution
		sub.AccumulatedMarkupContribution = sub.MarkupContribution
	} else {
		// intermediate rows group; their own attributes don't count
		sub.NominalValue = 0
		sub.FringeContribution = 0
		var value, fringe, markup float64
		for _, c := range children {
			value += c.AccumulatedValue + c.AccumulatedFringeContribution + c.AccumulatedMarkupContribution
			fringe += c.AccumulatedFringeContribution
			markup += c.AccumulatedMarkupContribution
		}
		sub.AccumulatedValue = value
		sub.MarkupContribution = snap.markupContribution(sub)
		sub.AccumulatedFringeContribution = fringe
		sub.AccumulatedMarkupContribution = markup + sub.MarkupContribution
	}

	if sub.Variant == models.VariantBudget {
		actual := snap.ownedActuals(ref)
		for _, c := range children {
			actual += c.Actual
		}
		for _, mid := range snap.ChildMarkups[ref] {
			actual += snap.Markups[mid].Actual
		}
		sub.Actual = actual
	}
}

func (snap *Snapshot) computeAccount(a *models.Account) {
	ref := NodeRef{Kind: KindAccount, ID: a.ID}
	var value, fringe, markup, actual float64
	for _, c := range snap.AccountChildren[a.ID] {
		value += c.AccumulatedValue + c.AccumulatedFringeContribution + c.AccumulatedMarkupContribution
		fringe += c.AccumulatedFringeContribution
		markup += c.AccumulatedMarkupContribution
		actual += c.Actual
	}
	a.AccumulatedValue = value
	a.AccumulatedFringeContribution = fringe
	a.AccumulatedMarkupContribution = markup
	if a.Variant == models.VariantBudget {
		for _, mid := range snap.ChildMarkups[ref] {
			actual += snap.Markups[mid].Actual
		}
		a.Actual = actual
	}
}

func (snap *Snapshot) computeMarkup(m *models.Markup) {
	if m.Variant == models.VariantBudget {
		m.Actual = snap.ownedActuals(NodeRef{Kind: KindMarkup, ID: m.ID})
	}
}

func (snap *Snapshot) computeBudget() {
	b := snap.Budget
	root := NodeRef{Kind: KindBudget, ID: b.ID}

	var nominal, fringe, markup, actual float64
	for _, a := range snap.Accounts {
		nominal += a.AccumulatedValue
		fringe += a.AccumulatedFringeContribution
		markup += a.AccumulatedMarkupContribution
		actual += a.Actual
	}
	var top float64
	for _, mid := range snap.ChildMarkups[root] {
		m := snap.Markups[mid]
		top += snap.budgetMarkupContribution(m)
		actual += m.Actual
	}
	b.NominalValue = nominal
	b.AccumulatedFringeContribution = fringe
	b.AccumulatedMarkupContribution = markup + top
	b.AccumulatedValue = nominal + top
	if b.Variant == models.VariantBudget {
		b.Actual = actual
	}
}

// fringeContribution applies the sub-account's fringes to its nominal value.
// A percent fringe stops contributing past its cutoff; a flat fringe adds its
// rate once.
func (snap *Snapshot) fringeContribution(sub *models.SubAccount) float64 {
	var total float64
	for _, fid := range snap.SubFringes[sub.ID] {
		f, ok := snap.Fringes[fid]
		if !ok {
			continue
		}
		rate := val(f.Rate, 0)
		switch f.Unit {
		case models.FringeUnitPercent:
			base := sub.NominalValue
			if f.Cutoff != nil && base > *f.Cutoff {
				base = *f.Cutoff
			}
			total += base * rate
		case models.FringeUnitFlat:
			total += rate
		}
	}
	return total
}

// markupContribution is this row's share of every markup whose applied set
// contains it. Percent markups read the row's accumulated value; flat markups
// split their rate evenly across all recipients, accounts and sub-accounts
// alike.
func (snap *Snapshot) markupContribution(sub *models.SubAccount) float64 {
	var total float64
	for _, mid := range snap.SubMarkups[sub.ID] {
		m, ok := snap.Markups[mid]
		if !ok {
			continue
		}
		rate := val(m.Rate, 0)
		switch m.Unit {
		case models.MarkupUnitPercent:
			total += sub.AccumulatedValue * rate
		case models.MarkupUnitFlat:
			n := len(snap.MarkupSubs[mid]) + len(snap.MarkupAccounts[mid])
			if n > 0 {
				total += rate / float64(n)
			}
		}
	}
	return total
}

// budgetMarkupContribution values a budget-level markup over its applied
// accounts.
func (snap *Snapshot) budgetMarkupContribution(m *models.Markup) float64 {
	rate := val(m.Rate, 0)
	switch m.Unit {
	case models.MarkupUnitPercent:
		var applied float64
		for _, a := range snap.Accounts {
			for _, aid := range snap.MarkupAccounts[m.ID] {
				if a.ID == aid {
					applied += a.AccumulatedValue
				}
			}
		}
		return applied * rate
	case models.MarkupUnitFlat:
		return rate
	}
	return 0
}

func (snap *Snapshot) ownedActuals(owner NodeRef) float64 {
	var total float64
	for _, a := range snap.ActualsByOwner[owner] {
		total += val(a.Value, 0)
	}
	return total
}
