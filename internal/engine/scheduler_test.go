package engine

import (
	"testing"

	"prodbudget-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkEditCoalesces(t *testing.T) {
	f := newFixture(models.VariantBudget)
	f.account(10, "n")
	for i := uint(0); i < 10; i++ {
		f.leaf(100+i, 10, string(rune('b'+i)), fp(1), fp(float64(i)), nil)
	}
	f.snap.index()

	// ten sibling edits in one boundary
	for i := uint(0); i < 10; i++ {
		f.sched.SubAccountChanged(f.snap.Subs[100+i])
	}
	f.sched.propagate(f.snap)

	assert.Equal(t, 1, f.sched.Recomputes[AccountRef(10)])
	assert.Equal(t, 1, f.sched.Recomputes[BudgetRef(1)])
	for i := uint(0); i < 10; i++ {
		assert.Equal(t, 1, f.sched.Recomputes[SubRef(100+i)])
	}
}

func TestMarkDirtyExpandsAncestors(t *testing.T) {
	f := newFixture(models.VariantBudget)
	f.account(10, "n")
	f.leaf(100, 10, "n", fp(1), fp(1.0), nil)
	f.nestedLeaf(200, 100, "n", fp(2), fp(50.0), nil)
	f.snap.index()

	f.sched.MarkDirty(SubRef(200))
	refs := f.sched.propagate(f.snap)

	require.Len(t, refs, 4)
	assert.Equal(t, SubRef(200), refs[0])
	assert.Equal(t, SubRef(100), refs[1])
	assert.Equal(t, AccountRef(10), refs[2])
	assert.Equal(t, BudgetRef(1), refs[3])
	assert.Equal(t, 100.0, f.snap.Budget.AccumulatedValue)
}

func TestLeavesFlushBeforeParentsAcrossAccounts(t *testing.T) {
	f := newFixture(models.VariantBudget)
	f.account(10, "b")
	f.account(11, "n")
	f.leaf(100, 10, "n", fp(1), fp(10.0), nil)
	f.leaf(101, 11, "n", fp(1), fp(20.0), nil)
	f.snap.index()

	f.sched.SubAccountChanged(f.snap.Subs[100])
	f.sched.SubAccountChanged(f.snap.Subs[101])
	refs := f.sched.propagate(f.snap)

	depths := make([]int, len(refs))
	for i, r := range refs {
		depths[i] = f.snap.Depth(r)
	}
	for i := 1; i < len(depths); i++ {
		assert.GreaterOrEqual(t, depths[i-1], depths[i], "flush order must be leaves first")
	}
	// equal depth breaks ties on the order key
	assert.Equal(t, AccountRef(10), refs[2])
	assert.Equal(t, AccountRef(11), refs[3])
}

func TestSuppressionDropsMarks(t *testing.T) {
	f := newFixture(models.VariantBudget)
	f.account(10, "n")
	f.leaf(100, 10, "n", fp(1), fp(10.0), nil)
	f.snap.index()

	release := f.sched.DisablePropagation(nil)
	f.sched.SubAccountChanged(f.snap.Subs[100])
	release()

	refs := f.sched.propagate(f.snap)
	assert.Empty(t, refs)
}

func TestScopedSuppression(t *testing.T) {
	f := newFixture(models.VariantBudget)
	f.account(10, "b")
	f.account(11, "n")
	f.leaf(100, 10, "n", fp(1), fp(10.0), nil)
	f.leaf(101, 11, "n", fp(1), fp(20.0), nil)
	f.snap.index()

	// suppression scoped to account 10: events under it are silenced, events
	// elsewhere still propagate
	scope := AccountRef(10)
	release := f.sched.DisablePropagation(&scope)
	f.sched.SubAccountChanged(f.snap.Subs[100])
	f.sched.SubAccountChanged(f.snap.Subs[101])
	release()

	refs := f.sched.propagate(f.snap)
	assert.NotContains(t, refs, SubRef(100))
	assert.Contains(t, refs, SubRef(101))
	assert.Contains(t, refs, AccountRef(11))
}

func TestSuccessiveScopesStayIndependent(t *testing.T) {
	f := newFixture(models.VariantBudget)
	f.account(10, "b")
	f.account(11, "n")
	f.leaf(100, 10, "n", fp(1), fp(10.0), nil)
	f.leaf(101, 11, "n", fp(1), fp(20.0), nil)
	f.snap.index()

	// two scoped windows in one boundary; each mark is judged against the
	// scope that was active when it arrived, not the last one seen
	scopeA := AccountRef(10)
	release := f.sched.DisablePropagation(&scopeA)
	f.sched.SubAccountChanged(f.snap.Subs[100])
	release()

	scopeB := AccountRef(11)
	release = f.sched.DisablePropagation(&scopeB)
	f.sched.SubAccountChanged(f.snap.Subs[101])
	release()

	refs := f.sched.propagate(f.snap)
	assert.NotContains(t, refs, SubRef(100))
	assert.NotContains(t, refs, SubRef(101))
}

func TestReleaseRestoresIntakeAfterScope(t *testing.T) {
	f := newFixture(models.VariantBudget)
	f.account(10, "n")
	f.leaf(100, 10, "n", fp(1), fp(10.0), nil)
	f.snap.index()

	release := f.sched.DisablePropagation(nil)
	release()
	f.sched.SubAccountChanged(f.snap.Subs[100])

	assert.NotEmpty(t, f.sched.propagate(f.snap))
}

func TestDeletedNodeMarksAreSkipped(t *testing.T) {
	f := newFixture(models.VariantBudget)
	f.account(10, "n")
	f.leaf(100, 10, "n", fp(1), fp(10.0), nil)
	f.snap.index()

	// a mark for a row deleted later in the same boundary
	f.sched.MarkDirty(SubRef(999))
	f.sched.RowDeleted(AccountRef(10))
	refs := f.sched.propagate(f.snap)

	assert.NotContains(t, refs, SubRef(999))
	assert.Contains(t, refs, AccountRef(10))
	assert.Contains(t, refs, BudgetRef(1))
}

func TestMarkAllRecomputesEveryNode(t *testing.T) {
	f := newFixture(models.VariantBudget)
	f.account(10, "n")
	f.leaf(100, 10, "n", fp(1), fp(10.0), nil)
	f.subMarkup(30, 10, models.MarkupUnitFlat, fp(9.0), 100)
	f.snap.index()

	f.sched.MarkAll()
	refs := f.sched.propagate(f.snap)
	assert.Len(t, refs, 4) // sub, markup, account, budget
}

func TestActualIntakeMarksOwnerChain(t *testing.T) {
	f := newFixture(models.VariantBudget)
	f.account(10, "n")
	f.leaf(100, 10, "n", fp(1), fp(10.0), nil)
	f.snap.index()

	a := &models.Actual{ID: 1, BudgetID: 1, OwnerType: models.ActualOwnerSubAccount, OwnerID: 100, Value: fp(25.0)}
	f.snap.ActualsByOwner[SubRef(100)] = append(f.snap.ActualsByOwner[SubRef(100)], a)
	f.sched.ActualChanged(a)
	refs := f.sched.propagate(f.snap)

	assert.Contains(t, refs, SubRef(100))
	assert.Contains(t, refs, AccountRef(10))
	assert.Contains(t, refs, BudgetRef(1))
	assert.Equal(t, 25.0, f.snap.Budget.Actual)
}
