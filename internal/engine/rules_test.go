package engine

import (
	"testing"

	"prodbudget-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckVariantRejectsMixedTrees(t *testing.T) {
	assert.NoError(t, CheckVariant(models.VariantBudget, models.VariantBudget))
	assert.NoError(t, CheckVariant(models.VariantTemplate, models.VariantTemplate))

	err := CheckVariant(models.VariantBudget, models.VariantTemplate)
	assert.ErrorIs(t, err, ErrCrossDomain)

	err = CheckVariant(models.VariantTemplate, models.VariantBudget)
	assert.ErrorIs(t, err, ErrCrossDomain)
}

func TestValidateFringeRefs(t *testing.T) {
	db := openTestDB(t)
	b := seedBudget(t, db, models.VariantBudget)
	other := seedBudget(t, db, models.VariantBudget)

	mine := &models.Fringe{Variant: b.Variant, BudgetID: b.ID, Name: "Union", Unit: models.FringeUnitFlat, Order: "n"}
	require.NoError(t, db.Create(mine).Error)
	theirs := &models.Fringe{Variant: other.Variant, BudgetID: other.ID, Name: "Union", Unit: models.FringeUnitFlat, Order: "n"}
	require.NoError(t, db.Create(theirs).Error)

	assert.NoError(t, ValidateFringeRefs(db, b.ID, b.Variant, nil))
	assert.NoError(t, ValidateFringeRefs(db, b.ID, b.Variant, []uint{mine.ID}))

	err := ValidateFringeRefs(db, b.ID, b.Variant, []uint{theirs.ID})
	assert.ErrorIs(t, err, ErrInvalidReference)

	err = ValidateFringeRefs(db, b.ID, b.Variant, []uint{99999})
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func TestValidateMarkupAppliedBudgetLevel(t *testing.T) {
	db := openTestDB(t)
	b := seedBudget(t, db, models.VariantBudget)
	other := seedBudget(t, db, models.VariantBudget)
	a := seedAccount(t, db, b, "n")
	foreign := seedAccount(t, db, other, "n")

	m := &models.Markup{Variant: b.Variant, BudgetID: b.ID, Unit: models.MarkupUnitPercent}

	assert.NoError(t, ValidateMarkupApplied(db, m, []uint{a.ID}, nil))

	// budget-level markups never apply to sub-accounts
	err := ValidateMarkupApplied(db, m, nil, []uint{1})
	assert.ErrorIs(t, err, ErrInvalidReference)

	err = ValidateMarkupApplied(db, m, []uint{foreign.ID}, nil)
	assert.ErrorIs(t, err, ErrInvalidReference)

	err = ValidateMarkupApplied(db, m, []uint{99999}, nil)
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func TestValidateMarkupAppliedNested(t *testing.T) {
	db := openTestDB(t)
	b := seedBudget(t, db, models.VariantBudget)
	a := seedAccount(t, db, b, "b")
	a2 := seedAccount(t, db, b, "n")

	sibling := &models.SubAccount{Variant: b.Variant, BudgetID: b.ID, ParentAccountID: &a.ID, Order: "n"}
	require.NoError(t, db.Create(sibling).Error)
	stranger := &models.SubAccount{Variant: b.Variant, BudgetID: b.ID, ParentAccountID: &a2.ID, Order: "n"}
	require.NoError(t, db.Create(stranger).Error)

	m := &models.Markup{Variant: b.Variant, BudgetID: b.ID, ParentAccountID: &a.ID, Unit: models.MarkupUnitPercent}

	assert.NoError(t, ValidateMarkupApplied(db, m, nil, []uint{sibling.ID}))

	// nested markups never apply to accounts
	err := ValidateMarkupApplied(db, m, []uint{a.ID}, nil)
	assert.ErrorIs(t, err, ErrInvalidReference)

	// a row from another table is not a sibling
	err = ValidateMarkupApplied(db, m, nil, []uint{stranger.ID})
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func TestValidateContactRef(t *testing.T) {
	db := openTestDB(t)
	c := &models.Contact{OwnerID: 1, Name: "Gaffer", Order: "n"}
	require.NoError(t, db.Create(c).Error)

	assert.NoError(t, ValidateContactRef(db, 1, c.ID))
	assert.ErrorIs(t, ValidateContactRef(db, 2, c.ID), ErrInvalidReference)
	assert.ErrorIs(t, ValidateContactRef(db, 1, 99999), ErrInvalidReference)
}

func TestWouldCycle(t *testing.T) {
	db := openTestDB(t)
	b := seedBudget(t, db, models.VariantBudget)
	a := seedAccount(t, db, b, "n")

	top := &models.SubAccount{Variant: b.Variant, BudgetID: b.ID, ParentAccountID: &a.ID, Order: "b"}
	require.NoError(t, db.Create(top).Error)
	mid := &models.SubAccount{Variant: b.Variant, BudgetID: b.ID, ParentSubAccountID: &top.ID, Order: "n"}
	require.NoError(t, db.Create(mid).Error)
	deep := &models.SubAccount{Variant: b.Variant, BudgetID: b.ID, ParentSubAccountID: &mid.ID, Order: "n"}
	require.NoError(t, db.Create(deep).Error)

	cycles, err := WouldCycle(db, top.ID, deep.ID)
	require.NoError(t, err)
	assert.True(t, cycles, "moving a row under its own descendant")

	cycles, err = WouldCycle(db, top.ID, top.ID)
	require.NoError(t, err)
	assert.True(t, cycles, "moving a row under itself")

	cycles, err = WouldCycle(db, deep.ID, top.ID)
	require.NoError(t, err)
	assert.False(t, cycles, "moving a row up the chain is fine")
}
