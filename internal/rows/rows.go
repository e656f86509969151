// Package rows places rows inside the ordered tables (accounts, fringes,
// actuals, contacts, sub-account children). It turns neighbour ids from a
// request into an order key via the ordering package, and rewrites a whole
// table's keys when a gap is exhausted or a key has grown past the length
// threshold.
package rows

import (
	"errors"
	"fmt"

	"prodbudget-backend/internal/ordering"

	"gorm.io/gorm"
)

// ErrBadNeighbour reports a previous/next id that is not part of the table
// being placed into.
var ErrBadNeighbour = errors.New("rows: neighbour row is not in the same table")

// Table scopes one ordered row table.
type Table struct {
	Model any    // e.g. &models.Account{}
	Where string // e.g. "budget_id = ?"
	Args  []any
}

type row struct {
	ID    uint
	Order string
}

func (t Table) load(tx *gorm.DB) ([]row, error) {
	var rs []row
	err := tx.Model(t.Model).Where(t.Where, t.Args...).
		Select(`id, "order"`).Order(`"order" asc, id asc`).Scan(&rs).Error
	return rs, err
}

// keysValid reports whether the loaded keys are pairwise distinct. Duplicates
// are a data error; the caller responds by rebalancing the whole table.
func keysValid(rs []row) bool {
	keys := make([]string, len(rs))
	for i, r := range rs {
		keys[i] = r.Order
	}
	return ordering.Validate(keys)
}

// Append returns a key ordering after every existing key in the table.
func Append(tx *gorm.DB, t Table) (string, error) {
	rs, err := t.load(tx)
	if err != nil {
		return "", err
	}
	prev := ""
	if len(rs) > 0 {
		prev = rs[len(rs)-1].Order
	}
	return place(tx, t, rs, prev, "", len(rs))
}

// Place computes the order key for a row entering the table between the rows
// with ids prevID and nextID (nil means the respective end is open). When only
// one neighbour is given the other is resolved from the table itself.
// excludeID, when non-zero, is a row already in the table that is being moved;
// it is ignored while resolving neighbours and rewriting keys.
func Place(tx *gorm.DB, t Table, prevID, nextID *uint, excludeID uint) (string, error) {
	rs, err := t.load(tx)
	if err != nil {
		return "", err
	}
	if excludeID != 0 {
		kept := rs[:0]
		for _, r := range rs {
			if r.ID != excludeID {
				kept = append(kept, r)
			}
		}
		rs = kept
	}
	if prevID == nil && nextID == nil {
		prev := ""
		if len(rs) > 0 {
			prev = rs[len(rs)-1].Order
		}
		return place(tx, t, rs, prev, "", len(rs))
	}

	idx := func(id uint) int {
		for i, r := range rs {
			if r.ID == id {
				return i
			}
		}
		return -1
	}
	// Resolve the insertion slot: the row goes in at position "at", between
	// rs[at-1] and rs[at].
	var at int
	switch {
	case prevID != nil:
		i := idx(*prevID)
		if i < 0 {
			return "", ErrBadNeighbour
		}
		at = i + 1
		if nextID != nil {
			j := idx(*nextID)
			if j != at {
				return "", ErrBadNeighbour
			}
		}
	default:
		j := idx(*nextID)
		if j < 0 {
			return "", ErrBadNeighbour
		}
		at = j
	}
	prev, next := "", ""
	if at > 0 {
		prev = rs[at-1].Order
	}
	if at < len(rs) {
		next = rs[at].Order
	}
	return place(tx, t, rs, prev, next, at)
}

func place(tx *gorm.DB, t Table, rs []row, prev, next string, at int) (string, error) {
	if !keysValid(rs) {
		return rebalance(tx, t, rs, at)
	}
	key, err := ordering.Next(prev, next)
	if err == nil && !ordering.NeedsRebalance(key) {
		return key, nil
	}
	if err != nil && !errors.Is(err, ordering.ErrInvariant) {
		return "", err
	}
	return rebalance(tx, t, rs, at)
}

// rebalance rewrites every key in the table, evenly spaced, leaving a slot at
// position "at" whose key is returned for the entering row. The rewrite goes
// through temporary keys first so the unique index never sees a transient
// collision: '{' sorts above 'z' and real keys only use 'a'..'z', and the
// position suffix keeps the temporaries distinct even when the table holds
// duplicate keys it is recovering from.
func rebalance(tx *gorm.DB, t Table, rs []row, at int) (string, error) {
	keys := ordering.Rebalance(len(rs) + 1)
	slot := keys[at]
	for i, r := range rs {
		if err := tx.Model(t.Model).Where("id = ?", r.ID).
			UpdateColumn("order", fmt.Sprintf("%s{%d", r.Order, i)).Error; err != nil {
			return "", err
		}
	}
	ki := 0
	for _, r := range rs {
		if ki == at {
			ki++
		}
		if err := tx.Model(t.Model).Where("id = ?", r.ID).
			UpdateColumn("order", keys[ki]).Error; err != nil {
			return "", err
		}
		ki++
	}
	return slot, nil
}
