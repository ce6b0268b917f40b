// Package ledger holds the zero-based budgeting rules: how category balances
// and the money available to budget are derived from stored entries, and
// which movements of money are allowed.
//
// Every function is pure. Callers load a consistent snapshot from storage,
// ask the ledger what to write, and persist the result atomically.
package ledger

import (
	"fmt"
	"time"

	"zerobudget/internal/core"
)

// ComputeBalance derives a category's balance.
// allocated sums every allocation entry for the category (move entries
// included), spent sums its expenses, and available may go negative.
func ComputeBalance(categoryID int64, allocations []core.Allocation, transactions []core.Transaction) core.CategoryBalance {
	allocated := core.Zero
	for _, a := range allocations {
		if a.CategoryID == categoryID {
			allocated = allocated.Add(a.Amount)
		}
	}
	spent := core.Zero
	for _, t := range transactions {
		if t.Type == core.Expense && t.CategoryID != nil && *t.CategoryID == categoryID {
			spent = spent.Add(t.Amount)
		}
	}
	available := allocated.Sub(spent)
	return core.CategoryBalance{
		CategoryID:      categoryID,
		Allocated:       allocated,
		Spent:           spent,
		Available:       available,
		SpentPercentage: core.SpentPercentage(allocated, spent),
		Health:          core.ClassifyHealth(allocated, spent, available),
	}
}

// ComputeBalances returns one balance per category, in category order.
func ComputeBalances(categories []core.Category, allocations []core.Allocation, transactions []core.Transaction) []core.CategoryBalance {
	byCategory := make(map[int64][]core.Allocation, len(categories))
	for _, a := range allocations {
		byCategory[a.CategoryID] = append(byCategory[a.CategoryID], a)
	}
	spentBy := make(map[int64][]core.Transaction, len(categories))
	for _, t := range transactions {
		if t.CategoryID != nil {
			spentBy[*t.CategoryID] = append(spentBy[*t.CategoryID], t)
		}
	}

	balances := make([]core.CategoryBalance, 0, len(categories))
	for _, c := range categories {
		b := ComputeBalance(c.ID, byCategory[c.ID], spentBy[c.ID])
		b.CategoryName = c.Name
		balances = append(balances, b)
	}
	return balances
}

// AvailableToBudget is Σ account balances − Σ allocated + Σ spent.
func AvailableToBudget(accounts []core.Account, balances []core.CategoryBalance) core.Money {
	total := core.Zero
	for _, a := range accounts {
		total = total.Add(a.Balance)
	}
	for _, b := range balances {
		total = total.Sub(b.Allocated).Add(b.Spent)
	}
	return total
}

// Summarize computes every aggregate of an owner's ledger.
func Summarize(accounts []core.Account, categories []core.Category, allocations []core.Allocation, transactions []core.Transaction) core.Summary {
	balances := ComputeBalances(categories, allocations, transactions)
	s := core.Summary{Categories: balances}
	for _, a := range accounts {
		s.TotalBalance = s.TotalBalance.Add(a.Balance)
	}
	for _, b := range balances {
		s.TotalAllocated = s.TotalAllocated.Add(b.Allocated)
		s.TotalSpent = s.TotalSpent.Add(b.Spent)
	}
	s.AvailableToBudget = AvailableToBudget(accounts, balances)
	return s
}

// ApplyTransactionEffect returns the account balance after a transaction.
// There is no lower bound: accounts may be overdrawn.
func ApplyTransactionEffect(balance core.Money, typ core.TransactionType, amount core.Money) (core.Money, error) {
	if typ == core.Income {
		return checkBalance(balance.Add(amount))
	}
	return checkBalance(balance.Sub(amount))
}

// ReverseTransactionEffect undoes ApplyTransactionEffect.
func ReverseTransactionEffect(balance core.Money, typ core.TransactionType, amount core.Money) (core.Money, error) {
	if typ == core.Income {
		return checkBalance(balance.Sub(amount))
	}
	return checkBalance(balance.Add(amount))
}

// checkBalance rejects balances that can no longer be stored exactly.
func checkBalance(b core.Money) (core.Money, error) {
	if !b.InRange() {
		return b, core.FieldError("amount", core.ErrBalanceOutOfRange)
	}
	return b, nil
}

// CheckAllocation validates an allocation against the money still
// available to budget. The limit is only applied when enforce is set.
func CheckAllocation(in core.AllocationInput, availableToBudget core.Money, enforce bool) error {
	if err := in.Validate(); err != nil {
		return err
	}
	if enforce && in.Amount.GreaterThan(availableToBudget) {
		return core.FieldError("amount",
			fmt.Errorf("%w: only %s available to budget", core.ErrExceedsAvailable, availableToBudget))
	}
	return nil
}

// CheckMove validates a move against the source category's balance.
func CheckMove(in core.MoveInput, source core.CategoryBalance) error {
	if err := in.Validate(); err != nil {
		return err
	}
	if in.Amount.GreaterThan(source.Available) {
		return core.FieldError("amount",
			fmt.Errorf("%w: source category only has %s available", core.ErrExceedsAvailable, source.Available))
	}
	return nil
}

// MoveEntries returns the debit and credit entries of a move. Both share
// moveID and their amounts cancel out, so Σ allocated is unchanged.
func MoveEntries(in core.MoveInput, moveID string, now time.Time) (out, into core.Allocation) {
	out = core.Allocation{
		CategoryID:  in.SourceCategoryID,
		AccountID:   in.AccountID,
		Amount:      in.Amount.Neg(),
		Kind:        core.AllocationMoveOut,
		MoveID:      moveID,
		AllocatedAt: now,
	}
	into = core.Allocation{
		CategoryID:  in.TargetCategoryID,
		AccountID:   in.AccountID,
		Amount:      in.Amount,
		Kind:        core.AllocationMoveIn,
		MoveID:      moveID,
		AllocatedAt: now,
	}
	return out, into
}

// NewAllocation returns a plain allocate entry.
func NewAllocation(in core.AllocationInput, now time.Time) core.Allocation {
	return core.Allocation{
		CategoryID:  in.CategoryID,
		AccountID:   in.AccountID,
		Amount:      in.Amount,
		Kind:        core.AllocationAllocate,
		AllocatedAt: now,
	}
}
