package engine

import (
	"path/filepath"
	"testing"

	"prodbudget-backend/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// openTestDB gives each test its own migrated database file.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine_test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Contact{},
		&models.SubAccountUnit{},
		&models.Budget{},
		&models.Account{},
		&models.SubAccount{},
		&models.Fringe{},
		&models.Markup{},
		&models.Group{},
		&models.Actual{},
		&models.Attachment{},
	))
	return db
}

func seedBudget(t *testing.T, db *gorm.DB, variant models.Variant) *models.Budget {
	t.Helper()
	b := &models.Budget{Variant: variant, OwnerID: 1, Name: "Night Shoot", ProductionType: models.ProductionFilm}
	require.NoError(t, db.Create(b).Error)
	return b
}

func seedAccount(t *testing.T, db *gorm.DB, b *models.Budget, order string) *models.Account {
	t.Helper()
	a := &models.Account{Variant: b.Variant, BudgetID: b.ID, Order: order}
	require.NoError(t, db.Create(a).Error)
	return a
}

// A row inserted during a boundary still carries its pre-flush zeroes once the
// flush has run; only the database row holds the recomputed aggregates, so
// anything rendered back to the client must be reloaded first.
func TestFlushValuesOnlyVisibleAfterReload(t *testing.T) {
	db := openTestDB(t)
	b := seedBudget(t, db, models.VariantBudget)
	a := seedAccount(t, db, b, "n")

	sub := &models.SubAccount{
		Variant:         b.Variant,
		BudgetID:        b.ID,
		ParentAccountID: &a.ID,
		Quantity:        fp(3),
		Rate:            fp(100),
		Order:           "n",
	}

	tx := db.Begin()
	require.NoError(t, tx.Create(sub).Error)
	s := NewScheduler(b.ID)
	s.SubAccountChanged(sub)
	require.NoError(t, s.Flush(tx))
	require.NoError(t, tx.Commit().Error)

	// the struct handed to Create predates the flush
	assert.Equal(t, 0.0, sub.NominalValue)

	var got models.SubAccount
	require.NoError(t, db.First(&got, sub.ID).Error)
	assert.Equal(t, 300.0, got.NominalValue)
	assert.Equal(t, 300.0, got.AccumulatedValue)

	var acc models.Account
	require.NoError(t, db.First(&acc, a.ID).Error)
	assert.Equal(t, 300.0, acc.AccumulatedValue)

	var root models.Budget
	require.NoError(t, db.First(&root, b.ID).Error)
	assert.Equal(t, 300.0, root.AccumulatedValue)
}
