package rows

import (
	"path/filepath"
	"strings"
	"testing"

	"prodbudget-backend/internal/models"
	"prodbudget-backend/internal/ordering"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rows_test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Budget{}, &models.Account{}, &models.SubAccount{}))
	return db
}

func seedSub(t *testing.T, db *gorm.DB, accountID uint, order string) *models.SubAccount {
	t.Helper()
	parent := accountID
	sub := &models.SubAccount{Variant: models.VariantBudget, BudgetID: 1, ParentAccountID: &parent, Order: order}
	require.NoError(t, db.Create(sub).Error)
	return sub
}

func subTable(accountID uint) Table {
	return Table{Model: &models.SubAccount{}, Where: "parent_account_id = ?", Args: []any{accountID}}
}

func tableKeys(t *testing.T, db *gorm.DB, accountID uint) []string {
	t.Helper()
	var subs []models.SubAccount
	require.NoError(t, db.Where("parent_account_id = ?", accountID).Order(`"order" asc`).Find(&subs).Error)
	keys := make([]string, len(subs))
	for i, s := range subs {
		keys[i] = s.Order
	}
	return keys
}

func TestAppendAfterLastKey(t *testing.T) {
	db := openTestDB(t)
	seedSub(t, db, 10, "n")

	key, err := Append(db, subTable(10))
	require.NoError(t, err)
	assert.Equal(t, "w", key)
}

func TestPlaceBetweenNeighbours(t *testing.T) {
	db := openTestDB(t)
	lo := seedSub(t, db, 10, "n")
	hi := seedSub(t, db, 10, "y")

	key, err := Place(db, subTable(10), &lo.ID, &hi.ID, 0)
	require.NoError(t, err)
	assert.True(t, "n" < key && key < "y", "Place returned %q", key)
}

func TestPlaceRejectsForeignNeighbour(t *testing.T) {
	db := openTestDB(t)
	seedSub(t, db, 10, "n")
	foreign := seedSub(t, db, 11, "n")

	_, err := Place(db, subTable(10), &foreign.ID, nil, 0)
	assert.ErrorIs(t, err, ErrBadNeighbour)
}

// The sub-account order column has no unique index, so a duplicated key can
// land in the table. Any placement on such a table must rewrite it entirely
// instead of trusting the gaps.
func TestPlaceRebalancesDuplicateKeys(t *testing.T) {
	db := openTestDB(t)
	first := seedSub(t, db, 10, "n")
	seedSub(t, db, 10, "n")

	key, err := Place(db, subTable(10), &first.ID, nil, 0)
	require.NoError(t, err)

	keys := tableKeys(t, db, 10)
	require.Len(t, keys, 2)
	assert.True(t, ordering.Validate(keys), "table still holds duplicates: %v", keys)
	assert.True(t, ordering.Validate(append(keys, key)), "slot %q collides with %v", key, keys)
	assert.True(t, keys[0] < key && key < keys[1], "slot %q not between %v", key, keys)
}

func TestAppendRebalancesDuplicateKeys(t *testing.T) {
	db := openTestDB(t)
	seedSub(t, db, 10, "n")
	seedSub(t, db, 10, "n")

	key, err := Append(db, subTable(10))
	require.NoError(t, err)

	keys := tableKeys(t, db, 10)
	require.Len(t, keys, 2)
	assert.True(t, ordering.Validate(keys), "table still holds duplicates: %v", keys)
	assert.True(t, keys[1] < key, "append slot %q must order last", key)
}

func TestRebalanceOnExhaustedGap(t *testing.T) {
	db := openTestDB(t)
	long := "b" + strings.Repeat("a", ordering.MaxKeyLen) + "b"
	lo := seedSub(t, db, 10, "b")
	hi := seedSub(t, db, 10, long)

	key, err := Place(db, subTable(10), &lo.ID, &hi.ID, 0)
	require.NoError(t, err)

	keys := tableKeys(t, db, 10)
	require.Len(t, keys, 2)
	assert.True(t, ordering.Validate(append(keys, key)))
	assert.True(t, keys[0] < key && key < keys[1])
	for _, k := range keys {
		assert.False(t, ordering.NeedsRebalance(k), "key %q still too long", k)
	}
}
