package budget

import (
	"testing"

	"prodbudget-backend/internal/engine"
	"prodbudget-backend/internal/models"

	"github.com/stretchr/testify/require"
)

func sp(s string) *string { return &s }

func TestWorkbookLaysOutTree(t *testing.T) {
	acct := &models.Account{
		ID:               1,
		Identifier:       sp("1000"),
		Description:      sp("Above the Line"),
		AccumulatedValue: 1320,
		Actual:           200,
	}
	leaf := &models.SubAccount{
		ID:               10,
		Identifier:       sp("1000-01"),
		Description:      sp("Director"),
		NominalValue:     1200,
		AccumulatedValue: 1200,
	}
	nested := &models.SubAccount{
		ID:          11,
		Identifier:  sp("1000-01-A"),
		Description: sp("Prep weeks"),
	}
	snap := &engine.Snapshot{
		Budget: &models.Budget{
			Name:             "Feature",
			NominalValue:     1200,
			AccumulatedValue: 1320,
			Actual:           200,
		},
		Accounts:        []*models.Account{acct},
		AccountChildren: map[uint][]*models.SubAccount{1: {leaf}},
		SubChildren:     map[uint][]*models.SubAccount{10: {nested}},
	}

	f, err := Workbook(snap)
	require.NoError(t, err)
	defer f.Close()

	get := func(cell string) string {
		v, err := f.GetCellValue(exportSheet, cell)
		require.NoError(t, err)
		return v
	}
	require.Equal(t, "Account", get("A1"))
	require.Equal(t, "1000", get("A2"))
	require.Equal(t, "    1000-01", get("A3"))
	require.Equal(t, "        1000-01-A", get("A4"))
	require.Equal(t, "Total", get("A5"))
	require.Equal(t, "1320", get("I5"))

	sheets := f.GetSheetList()
	require.Equal(t, []string{exportSheet}, sheets)
}

func TestWorkbookEmptyBudget(t *testing.T) {
	snap := &engine.Snapshot{
		Budget:          &models.Budget{Name: "Empty"},
		AccountChildren: map[uint][]*models.SubAccount{},
		SubChildren:     map[uint][]*models.SubAccount{},
	}
	f, err := Workbook(snap)
	require.NoError(t, err)
	defer f.Close()

	v, err := f.GetCellValue(exportSheet, "A2")
	require.NoError(t, err)
	require.Equal(t, "Total", v)
}
