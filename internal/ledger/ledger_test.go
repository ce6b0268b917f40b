package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zerobudget/internal/core"
)

func money(s string) core.Money { return core.MustParseMoney(s) }

func catID(id int64) *int64 { return &id }

func TestComputeBalance(t *testing.T) {
	allocations := []core.Allocation{
		{CategoryID: 1, Amount: money("200")},
		{CategoryID: 1, Amount: money("-50"), Kind: core.AllocationMoveOut},
		{CategoryID: 2, Amount: money("50"), Kind: core.AllocationMoveIn},
	}
	transactions := []core.Transaction{
		{CategoryID: catID(1), Type: core.Expense, Amount: money("30.10")},
		{CategoryID: catID(2), Type: core.Expense, Amount: money("75")},
		{Type: core.Income, Amount: money("1000")},
	}

	b := ComputeBalance(1, allocations, transactions)
	assert.Equal(t, "150.00", b.Allocated.String())
	assert.Equal(t, "30.10", b.Spent.String())
	assert.Equal(t, "119.90", b.Available.String())
	assert.Equal(t, core.HealthHealthy, b.Health)

	over := ComputeBalance(2, allocations, transactions)
	assert.Equal(t, "-25.00", over.Available.String())
	assert.Equal(t, core.HealthOverspent, over.Health)

	empty := ComputeBalance(3, allocations, transactions)
	assert.True(t, empty.Allocated.IsZero())
	assert.True(t, empty.Available.IsZero())
}

func TestComputeBalancesKeepsCategoryOrder(t *testing.T) {
	cats := []core.Category{{ID: 2, Name: "Rent"}, {ID: 1, Name: "Groceries"}}
	balances := ComputeBalances(cats, []core.Allocation{{CategoryID: 1, Amount: money("10")}}, nil)
	require.Len(t, balances, 2)
	assert.Equal(t, "Rent", balances[0].CategoryName)
	assert.Equal(t, "Groceries", balances[1].CategoryName)
	assert.Equal(t, "10.00", balances[1].Allocated.String())
}

func TestAvailableToBudget(t *testing.T) {
	accounts := []core.Account{{Balance: money("950")}, {Balance: money("50")}}
	balances := []core.CategoryBalance{
		{Allocated: money("200"), Spent: money("50")},
		{Allocated: money("100")},
	}
	// 1000 - 300 + 50
	assert.Equal(t, "750.00", AvailableToBudget(accounts, balances).String())
	assert.Equal(t, "0.00", AvailableToBudget(nil, nil).String())
}

func TestSummarize(t *testing.T) {
	accounts := []core.Account{{ID: 1, Balance: money("950")}}
	cats := []core.Category{{ID: 1, Name: "Groceries"}}
	allocations := []core.Allocation{{CategoryID: 1, AccountID: 1, Amount: money("200")}}
	transactions := []core.Transaction{{AccountID: 1, CategoryID: catID(1), Type: core.Expense, Amount: money("50")}}

	s := Summarize(accounts, cats, allocations, transactions)
	assert.Equal(t, "950.00", s.TotalBalance.String())
	assert.Equal(t, "200.00", s.TotalAllocated.String())
	assert.Equal(t, "50.00", s.TotalSpent.String())
	assert.Equal(t, "800.00", s.AvailableToBudget.String())
	require.Len(t, s.Categories, 1)
	assert.Equal(t, "150.00", s.Categories[0].Available.String())
}

func TestTransactionEffects(t *testing.T) {
	start := money("100")

	after, err := ApplyTransactionEffect(start, core.Income, money("50"))
	require.NoError(t, err)
	assert.Equal(t, "150.00", after.String())
	after, err = ApplyTransactionEffect(start, core.Expense, money("120"))
	require.NoError(t, err)
	assert.Equal(t, "-20.00", after.String())

	for _, typ := range []core.TransactionType{core.Income, core.Expense} {
		after, err := ApplyTransactionEffect(start, typ, money("33.33"))
		require.NoError(t, err)
		reversed, err := ReverseTransactionEffect(after, typ, money("33.33"))
		require.NoError(t, err)
		assert.True(t, reversed.Equal(start), typ)
	}
}

func TestTransactionEffects_BalanceBounds(t *testing.T) {
	top := money("999999999999999.99")

	_, err := ApplyTransactionEffect(top, core.Income, money("0.01"))
	require.ErrorIs(t, err, core.ErrValidation)
	assert.ErrorIs(t, err, core.ErrBalanceOutOfRange)

	_, err = ApplyTransactionEffect(top.Neg(), core.Expense, money("0.01"))
	assert.ErrorIs(t, err, core.ErrBalanceOutOfRange)

	_, err = ReverseTransactionEffect(top.Neg(), core.Income, money("1"))
	assert.ErrorIs(t, err, core.ErrBalanceOutOfRange)

	b, err := ApplyTransactionEffect(top, core.Expense, top)
	require.NoError(t, err)
	assert.True(t, b.IsZero())
}

func TestCheckAllocation(t *testing.T) {
	in := core.AllocationInput{CategoryID: 1, AccountID: 1, Amount: money("800")}

	assert.NoError(t, CheckAllocation(in, money("800"), true))

	err := CheckAllocation(in, money("799.99"), true)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrValidation)
	assert.ErrorIs(t, err, core.ErrExceedsAvailable)

	assert.NoError(t, CheckAllocation(in, money("10"), false))

	for _, amount := range []string{"0", "-5"} {
		bad := in
		bad.Amount = money(amount)
		assert.ErrorIs(t, CheckAllocation(bad, money("1000"), false), core.ErrInvalidAmount, amount)
	}
}

func TestCheckMove(t *testing.T) {
	in := core.MoveInput{SourceCategoryID: 1, TargetCategoryID: 2, AccountID: 1, Amount: money("150")}

	assert.NoError(t, CheckMove(in, core.CategoryBalance{Available: money("150")}))

	err := CheckMove(in, core.CategoryBalance{Available: money("149.99")})
	assert.ErrorIs(t, err, core.ErrExceedsAvailable)
	assert.Equal(t, core.KindValidation, core.KindOf(err))

	same := in
	same.TargetCategoryID = 1
	assert.ErrorIs(t, CheckMove(same, core.CategoryBalance{Available: money("1000")}), core.ErrSameCategory)
}

func TestMoveEntriesConserveAllocated(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	in := core.MoveInput{SourceCategoryID: 1, TargetCategoryID: 2, AccountID: 9, Amount: money("150")}

	out, into := MoveEntries(in, "move-1", now)
	assert.Equal(t, core.AllocationMoveOut, out.Kind)
	assert.Equal(t, core.AllocationMoveIn, into.Kind)
	assert.Equal(t, "move-1", out.MoveID)
	assert.Equal(t, out.MoveID, into.MoveID)
	assert.Equal(t, int64(1), out.CategoryID)
	assert.Equal(t, int64(2), into.CategoryID)
	assert.True(t, out.Amount.Add(into.Amount).IsZero())

	before := []core.Allocation{NewAllocation(core.AllocationInput{CategoryID: 1, AccountID: 9, Amount: money("200")}, now)}
	after := append(append([]core.Allocation{}, before...), out, into)
	cats := []core.Category{{ID: 1}, {ID: 2}}

	total := func(allocs []core.Allocation) core.Money {
		sum := core.Zero
		for _, b := range ComputeBalances(cats, allocs, nil) {
			sum = sum.Add(b.Allocated)
		}
		return sum
	}
	assert.True(t, total(before).Equal(total(after)))
}
