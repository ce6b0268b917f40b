// Package core provides money parsing and handling utilities.
//
// Amounts are fixed-point decimals with two fractional digits. They travel
// over the wire as decimal strings and are stored as integer cents, so no
// binary float ever takes part in ledger arithmetic.
package core

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// moneyPlaces is the number of fractional digits kept for every amount.
const moneyPlaces = 2

// maxIntegerDigits keeps every amount representable as int64 cents.
const maxIntegerDigits = 15

// Money is a signed fixed-point amount with two decimal places.
// The zero value is 0.00.
type Money struct {
	d decimal.Decimal
}

// Zero is 0.00.
var Zero = Money{}

// maxAbsAmount bounds every stored amount, balances included: the largest
// value with maxIntegerDigits integer digits.
var maxAbsAmount = decimal.New(1, maxIntegerDigits).Sub(decimal.New(1, -moneyPlaces))

// NewMoney rounds d half away from zero to two places.
func NewMoney(d decimal.Decimal) Money {
	return Money{d: d.Round(moneyPlaces)}
}

// MoneyFromCents builds an amount from integer cents.
func MoneyFromCents(cents int64) Money {
	return Money{d: decimal.New(cents, -moneyPlaces)}
}

// ParseMoney converts a decimal string to Money with half-up rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and an
// optional leading sign. Exponents, thousands separators and currency
// symbols are rejected with ErrInvalidMoney.
//
// Examples:
//
//	ParseMoney("12.34")  -> 12.34
//	ParseMoney("12,345") -> 12.35
//	ParseMoney("-5")     -> -5.00
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidMoney
	}
	s = strings.ReplaceAll(s, ",", ".")

	sign, digits := "", s
	switch {
	case strings.HasPrefix(digits, "-"):
		sign, digits = "-", digits[1:]
	case strings.HasPrefix(digits, "+"):
		digits = digits[1:]
	}
	parts := strings.Split(digits, ".")
	if len(parts) > 2 {
		return Money{}, ErrInvalidMoney
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" && fracPart == "" {
		return Money{}, ErrInvalidMoney
	}
	if len(strings.TrimLeft(intPart, "0")) > maxIntegerDigits {
		return Money{}, ErrInvalidMoney
	}
	for _, r := range intPart + fracPart {
		if r < '0' || r > '9' {
			return Money{}, ErrInvalidMoney
		}
	}
	if intPart == "" {
		intPart = "0"
	}
	if fracPart == "" {
		fracPart = "0"
	}

	d, err := decimal.NewFromString(sign + intPart + "." + fracPart)
	if err != nil {
		return Money{}, ErrInvalidMoney
	}
	return NewMoney(d), nil
}

// MustParseMoney is ParseMoney for literals known to be valid.
func MustParseMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(fmt.Sprintf("core: invalid money literal %q", s))
	}
	return m
}

// Decimal returns the underlying decimal value.
func (m Money) Decimal() decimal.Decimal { return m.d }

// Cents returns the amount as integer cents. Amounts outside InRange do
// not fit; use Value when that must be reported.
func (m Money) Cents() int64 {
	return m.d.Shift(moneyPlaces).IntPart()
}

// InRange reports whether the amount has at most maxIntegerDigits integer
// digits and so fits in int64 cents.
func (m Money) InRange() bool {
	return m.d.Abs().LessThanOrEqual(maxAbsAmount)
}

func (m Money) Add(o Money) Money { return Money{d: m.d.Add(o.d)} }
func (m Money) Sub(o Money) Money { return Money{d: m.d.Sub(o.d)} }
func (m Money) Neg() Money        { return Money{d: m.d.Neg()} }

// Cmp returns -1, 0 or +1 as m is less than, equal to or greater than o.
func (m Money) Cmp(o Money) int { return m.d.Cmp(o.d) }

func (m Money) Equal(o Money) bool       { return m.d.Equal(o.d) }
func (m Money) GreaterThan(o Money) bool { return m.d.GreaterThan(o.d) }
func (m Money) LessThan(o Money) bool    { return m.d.LessThan(o.d) }
func (m Money) IsZero() bool             { return m.d.IsZero() }
func (m Money) IsPositive() bool         { return m.d.IsPositive() }
func (m Money) IsNegative() bool         { return m.d.IsNegative() }

// String renders the amount with exactly two decimals, e.g. "-12.50".
func (m Money) String() string {
	return m.d.StringFixed(moneyPlaces)
}

// Validate reports whether the amount is strictly positive.
func (m Money) Validate() error {
	if !m.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

// SumMoney adds up amounts.
func SumMoney(amounts ...Money) Money {
	total := Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// MarshalJSON encodes the amount as a decimal string.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts a JSON string ("12.34") or a JSON number (12.34).
// Numbers are parsed from their literal digits, never through float64.
func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*m = Zero
		return nil
	}
	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return ErrInvalidMoney
		}
	}
	parsed, err := ParseMoney(raw)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// StoredCents is Cents for amounts that are about to be persisted. It fails
// with ErrAmountOutOfRange instead of wrapping.
func (m Money) StoredCents() (int64, error) {
	cents := m.d.Shift(moneyPlaces)
	if !m.InRange() || !cents.BigInt().IsInt64() {
		return 0, ErrAmountOutOfRange
	}
	return cents.IntPart(), nil
}

// Value stores the amount as integer cents.
func (m Money) Value() (driver.Value, error) {
	cents, err := m.StoredCents()
	if err != nil {
		return nil, err
	}
	return cents, nil
}

// Scan reads integer cents.
func (m *Money) Scan(src any) error {
	switch v := src.(type) {
	case int64:
		*m = MoneyFromCents(v)
	case nil:
		*m = Zero
	default:
		return fmt.Errorf("scan money: unsupported type %T", src)
	}
	return nil
}
