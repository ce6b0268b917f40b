package core

import "github.com/shopspring/decimal"

const (
	HealthHealthy   Health = "healthy"
	HealthWarning   Health = "warning"
	HealthOverspent Health = "overspent"
)

// warningPercentage is the spent share of the allocation at which a
// category turns to warning.
const warningPercentage = 80

// Health is the display classification of a category balance.
type Health string

// CategoryBalance is derived from allocations and expenses, never stored.
type CategoryBalance struct {
	CategoryID      int64   `json:"category_id"`
	CategoryName    string  `json:"category_name"`
	Allocated       Money   `json:"allocated"`
	Spent           Money   `json:"spent"`
	Available       Money   `json:"available"`
	SpentPercentage float64 `json:"spent_percentage"`
	Health          Health  `json:"health"`
}

// Summary aggregates an owner's ledger for the budget screen.
type Summary struct {
	TotalBalance      Money             `json:"total_balance"`
	TotalAllocated    Money             `json:"total_allocated"`
	TotalSpent        Money             `json:"total_spent"`
	AvailableToBudget Money             `json:"available_to_budget"`
	Categories        []CategoryBalance `json:"categories"`
}

// SpentPercentage returns spent as a percentage of allocated, or 0 when
// nothing is allocated.
func SpentPercentage(allocated, spent Money) float64 {
	if !allocated.IsPositive() {
		return 0
	}
	return spent.Decimal().Div(allocated.Decimal()).Shift(2).Round(1).InexactFloat64()
}

func ClassifyHealth(allocated, spent, available Money) Health {
	if available.IsNegative() {
		return HealthOverspent
	}
	if allocated.IsPositive() &&
		spent.Decimal().Shift(2).GreaterThanOrEqual(allocated.Decimal().Mul(decimal.NewFromInt(warningPercentage))) {
		return HealthWarning
	}
	return HealthHealthy
}
