package group

import (
	"context"
	"log"
	"time"

	"prodbudget-backend/internal/models"

	"gorm.io/gorm"
)

// SweepEmpty deletes groups no account or sub-account points at anymore.
// Rows leave their group by moving table or being deleted; the group itself
// stays behind until this runs. Groups younger than minAge are left alone so
// a freshly created group survives until its first member arrives.
func SweepEmpty(db *gorm.DB, minAge time.Duration) (int64, error) {
	res := db.Where(`NOT EXISTS (SELECT 1 FROM accounts  WHERE accounts.group_id = groups.id)
		AND NOT EXISTS (SELECT 1 FROM sub_accounts WHERE sub_accounts.group_id = groups.id)`).
		Where("created_at < ?", time.Now().Add(-minAge)).
		Delete(&models.Group{})
	return res.RowsAffected, res.Error
}

// RunSweeper loops SweepEmpty on the given interval until ctx is done.
func RunSweeper(ctx context.Context, db *gorm.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := SweepEmpty(db, interval)
			if err != nil {
				log.Printf("[WARN] group sweep failed: %v", err)
			} else if n > 0 {
				log.Printf("group sweep removed %d empty groups", n)
			}
		}
	}
}
