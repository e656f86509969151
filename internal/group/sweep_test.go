package group

import (
	"path/filepath"
	"testing"
	"time"

	"prodbudget-backend/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "group_test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Budget{}, &models.Account{}, &models.SubAccount{}, &models.Group{}))
	return db
}

func seedGroup(t *testing.T, db *gorm.DB, age time.Duration) *models.Group {
	t.Helper()
	g := &models.Group{Variant: models.VariantBudget, BudgetID: 1, Name: "Electric"}
	require.NoError(t, db.Create(g).Error)
	if age > 0 {
		require.NoError(t, db.Model(g).UpdateColumn("created_at", time.Now().Add(-age)).Error)
	}
	return g
}

func TestSweepRemovesOldEmptyGroups(t *testing.T) {
	db := openTestDB(t)
	old := seedGroup(t, db, time.Hour)

	n, err := SweepEmpty(db, 10*time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	var count int64
	require.NoError(t, db.Model(&models.Group{}).Where("id = ?", old.ID).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

// A group created moments ago has not had a chance to be populated yet; the
// sweep must leave it alone until it is older than the sweep interval.
func TestSweepSparesFreshGroups(t *testing.T) {
	db := openTestDB(t)
	fresh := seedGroup(t, db, 0)

	n, err := SweepEmpty(db, 10*time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	var count int64
	require.NoError(t, db.Model(&models.Group{}).Where("id = ?", fresh.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestSweepSparesPopulatedGroups(t *testing.T) {
	db := openTestDB(t)
	g := seedGroup(t, db, time.Hour)
	acc := &models.Account{Variant: models.VariantBudget, BudgetID: 1, Order: "n", GroupID: &g.ID}
	require.NoError(t, db.Create(acc).Error)

	n, err := SweepEmpty(db, 10*time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}
