package engine

import (
	"testing"

	"prodbudget-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fp(v float64) *float64 { return &v }

// fixture builds one in-memory budget tree and recomputes it in full, the way
// a flush would after MarkAll.
type fixture struct {
	snap  *Snapshot
	sched *Scheduler
}

func newFixture(variant models.Variant) *fixture {
	budget := &models.Budget{ID: 1, Variant: variant, Name: "Night Shoot", ProductionType: models.ProductionFilm}
	return &fixture{snap: newSnapshot(budget), sched: NewScheduler(budget.ID)}
}

func (f *fixture) account(id uint, order string) *models.Account {
	a := &models.Account{ID: id, Variant: f.snap.Budget.Variant, BudgetID: f.snap.Budget.ID, Order: order}
	f.snap.Accounts = append(f.snap.Accounts, a)
	return a
}

func (f *fixture) leaf(id, accountID uint, order string, qty, rate, mult *float64) *models.SubAccount {
	sub := &models.SubAccount{
		ID: id, Variant: f.snap.Budget.Variant, BudgetID: f.snap.Budget.ID,
		ParentAccountID: &accountID, Order: order,
		Quantity: qty, Rate: rate, Multiplier: mult,
	}
	f.snap.Subs[id] = sub
	f.snap.AccountChildren[accountID] = append(f.snap.AccountChildren[accountID], sub)
	return sub
}

func (f *fixture) nestedLeaf(id, parentSubID uint, order string, qty, rate, mult *float64) *models.SubAccount {
	sub := &models.SubAccount{
		ID: id, Variant: f.snap.Budget.Variant, BudgetID: f.snap.Budget.ID,
		ParentSubAccountID: &parentSubID, Order: order,
		Quantity: qty, Rate: rate, Multiplier: mult,
	}
	f.snap.Subs[id] = sub
	f.snap.SubChildren[parentSubID] = append(f.snap.SubChildren[parentSubID], sub)
	return sub
}

func (f *fixture) fringe(id uint, unit models.FringeUnit, rate, cutoff *float64, subIDs ...uint) *models.Fringe {
	fr := &models.Fringe{ID: id, Variant: f.snap.Budget.Variant, BudgetID: f.snap.Budget.ID, Unit: unit, Rate: rate, Cutoff: cutoff, Order: "n"}
	f.snap.Fringes[id] = fr
	for _, subID := range subIDs {
		f.snap.SubFringes[subID] = append(f.snap.SubFringes[subID], id)
	}
	return fr
}

func (f *fixture) subMarkup(id, parentAccountID uint, unit models.MarkupUnit, rate *float64, subIDs ...uint) *models.Markup {
	m := &models.Markup{ID: id, Variant: f.snap.Budget.Variant, BudgetID: f.snap.Budget.ID, Unit: unit, Rate: rate, ParentAccountID: &parentAccountID}
	f.snap.Markups[id] = m
	for _, subID := range subIDs {
		f.snap.MarkupSubs[id] = append(f.snap.MarkupSubs[id], subID)
		f.snap.SubMarkups[subID] = append(f.snap.SubMarkups[subID], id)
	}
	return m
}

func (f *fixture) budgetMarkup(id uint, unit models.MarkupUnit, rate *float64, accountIDs ...uint) *models.Markup {
	m := &models.Markup{ID: id, Variant: f.snap.Budget.Variant, BudgetID: f.snap.Budget.ID, Unit: unit, Rate: rate}
	f.snap.Markups[id] = m
	for _, accountID := range accountIDs {
		f.snap.MarkupAccounts[id] = append(f.snap.MarkupAccounts[id], accountID)
		f.snap.AccountMarkups[accountID] = append(f.snap.AccountMarkups[accountID], id)
	}
	return m
}

func (f *fixture) actual(id uint, owner NodeRef, value *float64) *models.Actual {
	a := &models.Actual{ID: id, BudgetID: f.snap.Budget.ID, OwnerID: owner.ID, Order: "n", Value: value}
	a.OwnerType = models.ActualOwnerSubAccount
	if owner.Kind == KindMarkup {
		a.OwnerType = models.ActualOwnerMarkup
	}
	f.snap.ActualsByOwner[owner] = append(f.snap.ActualsByOwner[owner], a)
	return a
}

func (f *fixture) recomputeAll() {
	f.snap.index()
	f.sched.MarkAll()
	f.sched.propagate(f.snap)
}

func TestLeafNominalValue(t *testing.T) {
	f := newFixture(models.VariantBudget)
	f.account(10, "n")
	sub := f.leaf(100, 10, "n", fp(3), fp(100.0), fp(2))
	f.recomputeAll()

	assert.Equal(t, 600.0, sub.NominalValue)
	assert.Equal(t, 600.0, sub.AccumulatedValue)
	assert.Zero(t, sub.FringeContribution)
	assert.Zero(t, sub.MarkupContribution)
}

func TestNilAttributesDefault(t *testing.T) {
	f := newFixture(models.VariantBudget)
	f.account(10, "n")
	// multiplier defaults to 1, quantity and rate to 0
	withMult := f.leaf(100, 10, "b", fp(2), fp(50), nil)
	bare := f.leaf(101, 10, "n", nil, nil, nil)
	f.recomputeAll()

	assert.Equal(t, 100.0, withMult.NominalValue)
	assert.Zero(t, bare.NominalValue)
}

func TestPercentFringeWithCutoff(t *testing.T) {
	f := newFixture(models.VariantBudget)
	f.account(10, "n")
	sub := f.leaf(100, 10, "n", fp(1), fp(1000.0), nil)
	f.fringe(20, models.FringeUnitPercent, fp(0.1), fp(800.0), 100)
	f.recomputeAll()

	// 0.1 x 800; the 200 above the cutoff contributes nothing
	assert.Equal(t, 80.0, sub.FringeContribution)
	assert.Equal(t, 80.0, sub.AccumulatedFringeContribution)
}

func TestFlatFringe(t *testing.T) {
	f := newFixture(models.VariantBudget)
	f.account(10, "n")
	sub := f.leaf(100, 10, "n", fp(1), fp(1000.0), nil)
	f.fringe(20, models.FringeUnitFlat, fp(250.0), nil, 100)
	f.recomputeAll()

	assert.Equal(t, 250.0, sub.FringeContribution)
}

func TestFlatMarkupSplitsEvenly(t *testing.T) {
	f := newFixture(models.VariantBudget)
	f.account(10, "n")
	s1 := f.leaf(100, 10, "b", fp(1), fp(100.0), nil)
	s2 := f.leaf(101, 10, "n", fp(1), fp(200.0), nil)
	s3 := f.leaf(102, 10, "y", fp(1), fp(300.0), nil)
	f.subMarkup(30, 10, models.MarkupUnitFlat, fp(300.0), 100, 101, 102)
	f.recomputeAll()

	assert.Equal(t, 100.0, s1.MarkupContribution)
	assert.Equal(t, 100.0, s2.MarkupContribution)
	assert.Equal(t, 100.0, s3.MarkupContribution)
}

func TestRollupWithAccountMarkup(t *testing.T) {
	f := newFixture(models.VariantBudget)
	acc := f.account(10, "n")
	f.leaf(100, 10, "b", fp(1), fp(500.0), nil)
	f.leaf(101, 10, "n", fp(1), fp(700.0), nil)
	f.recomputeAll()

	assert.Equal(t, 1200.0, acc.AccumulatedValue)
	assert.Equal(t, 1200.0, f.snap.Budget.AccumulatedValue)

	// a 10% markup over both rows lifts the account and the budget
	f.subMarkup(30, 10, models.MarkupUnitPercent, fp(0.1), 100, 101)
	f.recomputeAll()

	assert.Equal(t, 120.0, acc.AccumulatedMarkupContribution)
	assert.Equal(t, 1320.0, f.snap.Budget.AccumulatedValue)
}

func TestIntermediateSubAccountGroupsOnly(t *testing.T) {
	f := newFixture(models.VariantBudget)
	f.account(10, "n")
	// the parent row has its own quantity/rate, which stop counting the
	// moment it grows children
	parent := f.leaf(100, 10, "n", fp(5), fp(999.0), nil)
	f.nestedLeaf(200, 100, "b", fp(2), fp(100.0), nil)
	f.nestedLeaf(201, 100, "n", fp(3), fp(100.0), nil)
	f.recomputeAll()

	assert.Zero(t, parent.NominalValue)
	assert.Equal(t, 500.0, parent.AccumulatedValue)
}

func TestBudgetLevelMarkup(t *testing.T) {
	f := newFixture(models.VariantBudget)
	f.account(10, "b")
	f.account(11, "n")
	f.leaf(100, 10, "n", fp(1), fp(400.0), nil)
	f.leaf(101, 11, "n", fp(1), fp(600.0), nil)
	f.budgetMarkup(30, models.MarkupUnitPercent, fp(0.2), 10, 11)
	f.recomputeAll()

	assert.Equal(t, 1000.0, f.snap.Budget.NominalValue)
	assert.Equal(t, 200.0, f.snap.Budget.AccumulatedMarkupContribution)
	assert.Equal(t, 1200.0, f.snap.Budget.AccumulatedValue)
}

func TestActualsRollUp(t *testing.T) {
	f := newFixture(models.VariantBudget)
	acc := f.account(10, "n")
	f.leaf(100, 10, "n", fp(1), fp(500.0), nil)
	m := f.subMarkup(30, 10, models.MarkupUnitFlat, fp(50.0), 100)
	f.actual(1, SubRef(100), fp(120.0))
	f.actual(2, SubRef(100), fp(80.0))
	f.actual(3, MarkupRef(30), fp(30.0))
	f.recomputeAll()

	sub := f.snap.Subs[100]
	assert.Equal(t, 200.0, sub.Actual)
	assert.Equal(t, 30.0, m.Actual)
	assert.Equal(t, 230.0, acc.Actual)
	assert.Equal(t, 230.0, f.snap.Budget.Actual)
}

func TestTemplateCarriesNoActuals(t *testing.T) {
	f := newFixture(models.VariantTemplate)
	acc := f.account(10, "n")
	f.leaf(100, 10, "n", fp(2), fp(100.0), nil)
	f.recomputeAll()

	assert.Equal(t, 200.0, acc.AccumulatedValue)
	assert.Zero(t, acc.Actual)
	assert.Zero(t, f.snap.Budget.Actual)
}

func TestRecomputeIsIdempotent(t *testing.T) {
	f := newFixture(models.VariantBudget)
	f.account(10, "n")
	f.leaf(100, 10, "b", fp(3), fp(33.3), fp(1.7))
	f.leaf(101, 10, "n", fp(7), fp(0.1), nil)
	f.fringe(20, models.FringeUnitPercent, fp(0.125), fp(100.0), 100, 101)
	f.subMarkup(30, 10, models.MarkupUnitPercent, fp(0.0421), 100, 101)
	f.recomputeAll()

	first := *f.snap.Budget
	second := NewScheduler(f.snap.Budget.ID)
	second.MarkAll()
	second.propagate(f.snap)

	// bit-identical, not approximately equal
	assert.Equal(t, first.AccumulatedValue, f.snap.Budget.AccumulatedValue)
	assert.Equal(t, first.AccumulatedFringeContribution, f.snap.Budget.AccumulatedFringeContribution)
	assert.Equal(t, first.AccumulatedMarkupContribution, f.snap.Budget.AccumulatedMarkupContribution)
	assert.Equal(t, first.Actual, f.snap.Budget.Actual)
}

func TestRootInvariantCheck(t *testing.T) {
	f := newFixture(models.VariantBudget)
	f.account(10, "n")
	f.leaf(100, 10, "n", fp(2), fp(100.0), nil)
	f.recomputeAll()
	require.NoError(t, f.snap.checkInvariants())

	// a hand-edited aggregate is exactly what the check exists to catch
	f.snap.Budget.AccumulatedValue += 1
	assert.ErrorIs(t, f.snap.checkInvariants(), ErrAggregateInvariant)
}
