package engine

import (
	"context"
	"errors"
	"fmt"

	"prodbudget-backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OnBudgetUpdated, when set, fires once per affected budget after a boundary
// commits. Startup wires it to the cache invalidation publisher; consumers of
// the updated stream subscribe there.
var OnBudgetUpdated func(budgetID uint)

// Run opens a mutation boundary over one budget: a transaction holding the
// budget row lock for its whole duration. Concurrent mutations of the same
// tree serialize in lock acquisition order. fn performs the row mutations and
// reports them to the scheduler; on success the dirty set flushes and all
// aggregates are consistent when Run returns. Any error rolls everything back
// and nothing is emitted.
func Run(ctx context.Context, db *gorm.DB, budgetID uint, fn func(tx *gorm.DB, s *Scheduler) error) error {
	var sched *Scheduler
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var b models.Budget
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&b, budgetID).Error; err != nil {
			return fmt.Errorf("lock budget %d: %w", budgetID, err)
		}
		sched = NewScheduler(budgetID)
		if err := fn(tx, sched); err != nil {
			return err
		}
		if b.IsDeleting {
			// cascading delete in progress; aggregates die with the tree
			return nil
		}
		return sched.Flush(tx)
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: budget %d: %v", ErrPropagationTimedOut, budgetID, err)
		}
		return err
	}
	if sched != nil && sched.Flushed() && OnBudgetUpdated != nil {
		OnBudgetUpdated(budgetID)
	}
	return nil
}
