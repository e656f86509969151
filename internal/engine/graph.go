package engine

import (
	"fmt"
	"sort"

	"prodbudget-backend/internal/models"

	"gorm.io/gorm"
)

type NodeKind string

const (
	KindBudget     NodeKind = "budget"
	KindAccount    NodeKind = "account"
	KindSubAccount NodeKind = "subaccount"
	KindMarkup     NodeKind = "markup"
)

// NodeRef identifies one aggregate-bearing node of a budget tree.
type NodeRef struct {
	Kind NodeKind
	ID   uint
}

// Snapshot is one budget tree loaded in full: rows, child lists in order-key
// sequence, fringe/markup references and actuals grouped by owner. The
// aggregator computes over it and mutates the loaded rows in place.
type Snapshot struct {
	Budget   *models.Budget
	Accounts []*models.Account
	Subs     map[uint]*models.SubAccount

	AccountChildren map[uint][]*models.SubAccount
	SubChildren     map[uint][]*models.SubAccount

	Fringes    map[uint]*models.Fringe
	SubFringes map[uint][]uint // sub id -> fringe ids, fringe-order sequence

	Markups        map[uint]*models.Markup
	MarkupAccounts map[uint][]uint // markup id -> applied account ids
	MarkupSubs     map[uint][]uint // markup id -> applied sub-account ids
	SubMarkups     map[uint][]uint // sub id -> markups applied to it
	AccountMarkups map[uint][]uint // likewise for accounts
	ChildMarkups   map[NodeRef][]uint // parent node -> markups parented there

	ActualsByOwner map[NodeRef][]*models.Actual

	parent map[NodeRef]NodeRef
	depth  map[NodeRef]int
}

type subFringeRow struct {
	SubAccountID uint `gorm:"column:sub_account_id"`
	FringeID     uint `gorm:"column:fringe_id"`
}

type markupAccountRow struct {
	MarkupID  uint `gorm:"column:markup_id"`
	AccountID uint `gorm:"column:account_id"`
}

type markupSubRow struct {
	MarkupID     uint `gorm:"column:markup_id"`
	SubAccountID uint `gorm:"column:sub_account_id"`
}

func newSnapshot(budget *models.Budget) *Snapshot {
	return &Snapshot{
		Budget:          budget,
		Subs:            map[uint]*models.SubAccount{},
		AccountChildren: map[uint][]*models.SubAccount{},
		SubChildren:     map[uint][]*models.SubAccount{},
		Fringes:         map[uint]*models.Fringe{},
		SubFringes:      map[uint][]uint{},
		Markups:         map[uint]*models.Markup{},
		MarkupAccounts:  map[uint][]uint{},
		MarkupSubs:      map[uint][]uint{},
		SubMarkups:      map[uint][]uint{},
		AccountMarkups:  map[uint][]uint{},
		ChildMarkups:    map[NodeRef][]uint{},
		ActualsByOwner:  map[NodeRef][]*models.Actual{},
		parent:          map[NodeRef]NodeRef{},
		depth:           map[NodeRef]int{},
	}
}

// LoadSnapshot reads the whole tree of one budget. All reads happen inside the
// caller's transaction, so the snapshot is consistent with the boundary's own
// writes.
func LoadSnapshot(tx *gorm.DB, budgetID uint) (*Snapshot, error) {
	var budget models.Budget
	if err := tx.First(&budget, budgetID).Error; err != nil {
		return nil, fmt.Errorf("load budget %d: %w", budgetID, err)
	}
	snap := newSnapshot(&budget)

	var accounts []*models.Account
	if err := tx.Where("budget_id = ?", budgetID).Order(`"order" asc`).Find(&accounts).Error; err != nil {
		return nil, err
	}
	snap.Accounts = accounts

	var subs []*models.SubAccount
	if err := tx.Where("budget_id = ?", budgetID).Order(`"order" asc`).Find(&subs).Error; err != nil {
		return nil, err
	}
	for _, sub := range subs {
		snap.Subs[sub.ID] = sub
	}
	// subs arrive sorted by order key; appending per parent keeps sibling order
	for _, sub := range subs {
		switch {
		case sub.ParentAccountID != nil:
			snap.AccountChildren[*sub.ParentAccountID] = append(snap.AccountChildren[*sub.ParentAccountID], sub)
		case sub.ParentSubAccountID != nil:
			snap.SubChildren[*sub.ParentSubAccountID] = append(snap.SubChildren[*sub.ParentSubAccountID], sub)
		}
	}

	var fringes []*models.Fringe
	if err := tx.Where("budget_id = ?", budgetID).Order(`"order" asc`).Find(&fringes).Error; err != nil {
		return nil, err
	}
	fringeOrder := map[uint]int{}
	for i, f := range fringes {
		snap.Fringes[f.ID] = f
		fringeOrder[f.ID] = i
	}

	var markups []*models.Markup
	if err := tx.Where("budget_id = ?", budgetID).Order("id asc").Find(&markups).Error; err != nil {
		return nil, err
	}
	for _, m := range markups {
		snap.Markups[m.ID] = m
	}

	if len(subs) > 0 {
		subIDs := make([]uint, 0, len(subs))
		for _, s := range subs {
			subIDs = append(subIDs, s.ID)
		}
		var sfRows []subFringeRow
		if err := tx.Table("sub_account_fringes").Where("sub_account_id IN ?", subIDs).Find(&sfRows).Error; err != nil {
			return nil, err
		}
		for _, r := range sfRows {
			snap.SubFringes[r.SubAccountID] = append(snap.SubFringes[r.SubAccountID], r.FringeID)
		}
		// apply fringes in fringe-order sequence for reproducible sums
		for subID := range snap.SubFringes {
			ids := snap.SubFringes[subID]
			sort.Slice(ids, func(i, j int) bool { return fringeOrder[ids[i]] < fringeOrder[ids[j]] })
		}
	}

	if len(markups) > 0 {
		markupIDs := make([]uint, 0, len(markups))
		for _, m := range markups {
			markupIDs = append(markupIDs, m.ID)
		}
		var maRows []markupAccountRow
		if err := tx.Table("markup_accounts").Where("markup_id IN ?", markupIDs).Order("markup_id asc, account_id asc").Find(&maRows).Error; err != nil {
			return nil, err
		}
		for _, r := range maRows {
			snap.MarkupAccounts[r.MarkupID] = append(snap.MarkupAccounts[r.MarkupID], r.AccountID)
			snap.AccountMarkups[r.AccountID] = append(snap.AccountMarkups[r.AccountID], r.MarkupID)
		}
		var msRows []markupSubRow
		if err := tx.Table("markup_sub_accounts").Where("markup_id IN ?", markupIDs).Order("markup_id asc, sub_account_id asc").Find(&msRows).Error; err != nil {
			return nil, err
		}
		for _, r := range msRows {
			snap.MarkupSubs[r.MarkupID] = append(snap.MarkupSubs[r.MarkupID], r.SubAccountID)
			snap.SubMarkups[r.SubAccountID] = append(snap.SubMarkups[r.SubAccountID], r.MarkupID)
		}
	}

	if budget.Variant == models.VariantBudget {
		var actuals []*models.Actual
		if err := tx.Where("budget_id = ?", budgetID).Order(`"order" asc`).Find(&actuals).Error; err != nil {
			return nil, err
		}
		for _, a := range actuals {
			owner := NodeRef{Kind: KindSubAccount, ID: a.OwnerID}
			if a.OwnerType == models.ActualOwnerMarkup {
				owner = NodeRef{Kind: KindMarkup, ID: a.OwnerID}
			}
			snap.ActualsByOwner[owner] = append(snap.ActualsByOwner[owner], a)
		}
	}

	snap.index()
	return snap, nil
}

func markupParentRef(m *models.Markup, budgetID uint) NodeRef {
	switch {
	case m.ParentAccountID != nil:
		return NodeRef{Kind: KindAccount, ID: *m.ParentAccountID}
	case m.ParentSubAccountID != nil:
		return NodeRef{Kind: KindSubAccount, ID: *m.ParentSubAccountID}
	}
	return NodeRef{Kind: KindBudget, ID: budgetID}
}

// index (re)builds the parent, depth and markup-placement maps the scheduler
// orders flushes by.
func (snap *Snapshot) index() {
	snap.parent = map[NodeRef]NodeRef{}
	snap.depth = map[NodeRef]int{}
	snap.ChildMarkups = map[NodeRef][]uint{}

	root := NodeRef{Kind: KindBudget, ID: snap.Budget.ID}
	snap.depth[root] = 0

	for _, a := range snap.Accounts {
		ref := NodeRef{Kind: KindAccount, ID: a.ID}
		snap.parent[ref] = root
		snap.depth[ref] = 1
	}

	var subDepth func(sub *models.SubAccount) int
	subDepth = func(sub *models.SubAccount) int {
		ref := NodeRef{Kind: KindSubAccount, ID: sub.ID}
		if d, ok := snap.depth[ref]; ok {
			return d
		}
		var p NodeRef
		switch {
		case sub.ParentAccountID != nil:
			p = NodeRef{Kind: KindAccount, ID: *sub.ParentAccountID}
		case sub.ParentSubAccountID != nil:
			if parent, ok := snap.Subs[*sub.ParentSubAccountID]; ok {
				subDepth(parent)
			}
			p = NodeRef{Kind: KindSubAccount, ID: *sub.ParentSubAccountID}
		default:
			p = root
		}
		snap.parent[ref] = p
		snap.depth[ref] = snap.depth[p] + 1
		return snap.depth[ref]
	}
	for _, sub := range snap.Subs {
		subDepth(sub)
	}

	markupIDs := make([]uint, 0, len(snap.Markups))
	for id := range snap.Markups {
		markupIDs = append(markupIDs, id)
	}
	sort.Slice(markupIDs, func(i, j int) bool { return markupIDs[i] < markupIDs[j] })
	for _, id := range markupIDs {
		m := snap.Markups[id]
		ref := NodeRef{Kind: KindMarkup, ID: m.ID}
		p := markupParentRef(m, snap.Budget.ID)
		snap.parent[ref] = p
		snap.depth[ref] = snap.depth[p] + 1
		snap.ChildMarkups[p] = append(snap.ChildMarkups[p], m.ID)
	}
}

// Parent returns the aggregation parent of ref, or false at the root.
func (snap *Snapshot) Parent(ref NodeRef) (NodeRef, bool) {
	p, ok := snap.parent[ref]
	return p, ok
}

func (snap *Snapshot) Depth(ref NodeRef) int {
	return snap.depth[ref]
}

// Contains reports whether ref lies inside the subtree rooted at root
// (inclusive).
func (snap *Snapshot) Contains(root, ref NodeRef) bool {
	for {
		if ref == root {
			return true
		}
		p, ok := snap.parent[ref]
		if !ok {
			return false
		}
		ref = p
	}
}

// OrderKey is the tie-break for nodes at equal depth. Markups sort after the
// keyed rows of their table.
func (snap *Snapshot) OrderKey(ref NodeRef) string {
	switch ref.Kind {
	case KindAccount:
		for _, a := range snap.Accounts {
			if a.ID == ref.ID {
				return a.Order
			}
		}
	case KindSubAccount:
		if sub, ok := snap.Subs[ref.ID]; ok {
			return sub.Order
		}
	case KindMarkup:
		return "~" // past 'z'; markups aggregate after their keyed siblings
	}
	return ""
}

// AllNodes lists every aggregate-bearing node of the tree; MarkAll flushes
// recompute over this set.
func (snap *Snapshot) AllNodes() []NodeRef {
	refs := make([]NodeRef, 0, 1+len(snap.Accounts)+len(snap.Subs)+len(snap.Markups))
	for id := range snap.Subs {
		refs = append(refs, NodeRef{Kind: KindSubAccount, ID: id})
	}
	for _, a := range snap.Accounts {
		refs = append(refs, NodeRef{Kind: KindAccount, ID: a.ID})
	}
	for id := range snap.Markups {
		refs = append(refs, NodeRef{Kind: KindMarkup, ID: id})
	}
	refs = append(refs, NodeRef{Kind: KindBudget, ID: snap.Budget.ID})
	return refs
}
