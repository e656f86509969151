package engine

import (
	"fmt"
	"sort"
	"time"

	"prodbudget-backend/internal/models"

	"gorm.io/gorm"
)

// DebugChecks turns on the post-flush aggregate sanity check
// (AggregateInvariantBroken). Meant for tests and debug deployments.
var DebugChecks = false

// Scheduler is the per-boundary dirty set. One lives inside every engine.Run
// call; it is never shared across requests.
type Scheduler struct {
	budgetID uint
	dirty    map[NodeRef]struct{}
	all      bool

	suppressed bool
	scope      *NodeRef
	// deferred maps each mark taken under scoped suppression to the scope
	// that was active when it arrived. Scopes from successive suppression
	// windows must not bleed into each other.
	deferred map[NodeRef]NodeRef

	// Recomputes counts aggregator invocations per node. Test hook; bulk
	// edits must land exactly one recompute per ancestor.
	Recomputes map[NodeRef]int

	flushed bool
}

func NewScheduler(budgetID uint) *Scheduler {
	return &Scheduler{
		budgetID:   budgetID,
		dirty:      map[NodeRef]struct{}{},
		deferred:   map[NodeRef]NodeRef{},
		Recomputes: map[NodeRef]int{},
	}
}

func (s *Scheduler) BudgetID() uint { return s.budgetID }

// Flushed reports whether the boundary produced a propagation pass.
func (s *Scheduler) Flushed() bool { return s.flushed }

// MarkDirty records a node whose aggregates must be recomputed when the
// boundary closes. Ancestors join the set at flush time, so marking N siblings
// still recomputes each ancestor exactly once. Duplicates are no-ops.
func (s *Scheduler) MarkDirty(ref NodeRef) {
	if s.suppressed {
		if s.scope == nil {
			return
		}
		// scoped suppression is resolved at flush, once subtree membership
		// can be checked against the snapshot
		s.deferred[ref] = *s.scope
		return
	}
	s.dirty[ref] = struct{}{}
}

// MarkAll dirties the whole tree: every node recomputes at flush.
func (s *Scheduler) MarkAll() {
	if s.suppressed && s.scope == nil {
		return
	}
	s.all = true
}

// DisablePropagation suppresses intake until the returned release runs.
// A non-nil scope narrows suppression to events inside that node's subtree;
// events elsewhere still propagate. Defer the release so it runs on error
// paths too.
func (s *Scheduler) DisablePropagation(scope *NodeRef) func() {
	s.suppressed = true
	s.scope = scope
	return func() {
		s.suppressed = false
		s.scope = nil
	}
}

// Flush closes the boundary: loads the tree, expands the dirty set with every
// ancestor, recomputes leaves-first and persists the results. Reruns on an
// unchanged dirty set produce bit-identical values.
func (s *Scheduler) Flush(tx *gorm.DB) error {
	snap, err := LoadSnapshot(tx, s.budgetID)
	if err != nil {
		return err
	}
	if snap.Budget.IsDeleting {
		return nil
	}

	refs := s.propagate(snap)
	if len(refs) == 0 {
		return nil
	}
	for _, ref := range refs {
		if err := snap.persist(tx, ref); err != nil {
			return &CascadeError{Node: ref, Err: err}
		}
	}

	if DebugChecks {
		if err := snap.checkInvariants(); err != nil {
			return err
		}
	}

	// one updated_at bump per boundary, regardless of how many rows moved
	if err := tx.Model(&models.Budget{}).Where("id = ?", s.budgetID).
		UpdateColumn("updated_at", time.Now()).Error; err != nil {
		return err
	}
	s.flushed = true
	return nil
}

// propagate expands the dirty set over the snapshot, orders it leaves-first
// and recomputes each node once. Returns the recomputed refs in flush order.
func (s *Scheduler) propagate(snap *Snapshot) []NodeRef {
	for ref, scope := range s.deferred {
		if snap.Contains(scope, ref) {
			continue
		}
		s.dirty[ref] = struct{}{}
	}

	dirty := map[NodeRef]struct{}{}
	if s.all {
		for _, ref := range snap.AllNodes() {
			dirty[ref] = struct{}{}
		}
	} else {
		for ref := range s.dirty {
			if !snap.has(ref) {
				// deleted during the boundary; its former parent was marked
				// by intake already
				continue
			}
			for cur := ref; ; {
				dirty[cur] = struct{}{}
				p, ok := snap.Parent(cur)
				if !ok {
					break
				}
				cur = p
			}
		}
	}
	if len(dirty) == 0 {
		return nil
	}

	refs := make([]NodeRef, 0, len(dirty))
	for ref := range dirty {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		di, dj := snap.Depth(refs[i]), snap.Depth(refs[j])
		if di != dj {
			return di > dj // leaves first
		}
		ki, kj := snap.OrderKey(refs[i]), snap.OrderKey(refs[j])
		if ki != kj {
			return ki < kj
		}
		if refs[i].Kind != refs[j].Kind {
			return refs[i].Kind < refs[j].Kind
		}
		return refs[i].ID < refs[j].ID
	})

	for _, ref := range refs {
		snap.Recompute(ref)
		s.Recomputes[ref]++
	}
	return refs
}

func (snap *Snapshot) has(ref NodeRef) bool {
	switch ref.Kind {
	case KindBudget:
		return snap.Budget != nil && snap.Budget.ID == ref.ID
	case KindAccount:
		for _, a := range snap.Accounts {
			if a.ID == ref.ID {
				return true
			}
		}
	case KindSubAccount:
		_, ok := snap.Subs[ref.ID]
		return ok
	case KindMarkup:
		_, ok := snap.Markups[ref.ID]
		return ok
	}
	return false
}

// persist writes back one node's aggregate columns. UpdateColumns skips GORM
// hooks and the updated_at bump: the aggregator's own writes never re-enter
// intake (per-write suppression).
func (snap *Snapshot) persist(tx *gorm.DB, ref NodeRef) error {
	switch ref.Kind {
	case KindSubAccount:
		sub, ok := snap.Subs[ref.ID]
		if !ok {
			return nil
		}
		return tx.Model(&models.SubAccount{}).Where("id = ?", sub.ID).UpdateColumns(map[string]any{
			"nominal_value":                   sub.NominalValue,
			"fringe_contribution":             sub.FringeContribution,
			"markup_contribution":             sub.MarkupContribution,
			"accumulated_fringe_contribution": sub.AccumulatedFringeContribution,
			"accumulated_markup_contribution": sub.AccumulatedMarkupContribution,
			"accumulated_value":               sub.AccumulatedValue,
			"actual":                          sub.Actual,
		}).Error
	case KindAccount:
		for _, a := range snap.Accounts {
			if a.ID != ref.ID {
				continue
			}
			return tx.Model(&models.Account{}).Where("id = ?", a.ID).UpdateColumns(map[string]any{
				"accumulated_fringe_contribution": a.AccumulatedFringeContribution,
				"accumulated_markup_contribution": a.AccumulatedMarkupContribution,
				"accumulated_value":               a.AccumulatedValue,
				"actual":                          a.Actual,
			}).Error
		}
		return nil
	case KindMarkup:
		m, ok := snap.Markups[ref.ID]
		if !ok {
			return nil
		}
		return tx.Model(&models.Markup{}).Where("id = ?", m.ID).
			UpdateColumn("actual", m.Actual).Error
	case KindBudget:
		b := snap.Budget
		return tx.Model(&models.Budget{}).Where("id = ?", b.ID).UpdateColumns(map[string]any{
			"nominal_value":                   b.NominalValue,
			"accumulated_fringe_contribution": b.AccumulatedFringeContribution,
			"accumulated_markup_contribution": b.AccumulatedMarkupContribution,
			"accumulated_value":               b.AccumulatedValue,
			"actual":                          b.Actual,
		}).Error
	}
	return nil
}

// checkInvariants re-derives the root aggregates and compares bit-exact.
func (snap *Snapshot) checkInvariants() error {
	b := *snap.Budget
	snap.computeBudget()
	got := *snap.Budget
	*snap.Budget = b
	if got.AccumulatedValue != b.AccumulatedValue ||
		got.AccumulatedFringeContribution != b.AccumulatedFringeContribution ||
		got.AccumulatedMarkupContribution != b.AccumulatedMarkupContribution ||
		got.Actual != b.Actual {
		return fmt.Errorf("%w: budget %d root mismatch", ErrAggregateInvariant, b.ID)
	}
	return nil
}
