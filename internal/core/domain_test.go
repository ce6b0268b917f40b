package core

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestDateJSON(t *testing.T) {
	d := NewDate(time.Date(2025, 1, 15, 18, 30, 0, 0, time.UTC))
	out, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"2025-01-15"`, string(out))

	var back Date
	require.NoError(t, json.Unmarshal(out, &back))
	assert.True(t, back.Equal(d.Time))

	assert.ErrorIs(t, json.Unmarshal([]byte(`"15/01/2025"`), &back), ErrInvalidDate)

	var empty Date
	require.NoError(t, json.Unmarshal([]byte(`""`), &empty))
	assert.True(t, empty.IsZero())
}

func TestAccountInputValidate(t *testing.T) {
	assert.NoError(t, AccountInput{Name: "Checking", Balance: MustParseMoney("1000")}.Validate())
	assert.NoError(t, AccountInput{Name: "Cash"}.Validate())

	err := AccountInput{Name: "  ", Balance: MustParseMoney("-1")}.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, err, ErrEmptyName)
	assert.ErrorIs(t, err, ErrNegativeBalance)

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Contains(t, e.Fields, "name")
	assert.Contains(t, e.Fields, "balance")

	long := AccountInput{Name: strings.Repeat("a", MaxNameLength+1)}
	assert.ErrorIs(t, long.Validate(), ErrNameTooLong)
}

func TestAccountUpdateValidate(t *testing.T) {
	assert.ErrorIs(t, AccountUpdate{}.Validate(), ErrNothingToUpdate)
	assert.NoError(t, AccountUpdate{Name: ptr("Savings")}.Validate())
	assert.ErrorIs(t, AccountUpdate{Balance: ptr(MustParseMoney("-5"))}.Validate(), ErrNegativeBalance)

	in := AccountUpdate{Name: ptr("  Savings  ")}
	in.Normalize()
	assert.Equal(t, "Savings", *in.Name)
}

func TestMoveInputValidate(t *testing.T) {
	ok := MoveInput{SourceCategoryID: 1, TargetCategoryID: 2, AccountID: 1, Amount: MustParseMoney("10")}
	assert.NoError(t, ok.Validate())

	same := ok
	same.TargetCategoryID = 1
	assert.ErrorIs(t, same.Validate(), ErrSameCategory)

	zero := ok
	zero.Amount = Zero
	assert.ErrorIs(t, zero.Validate(), ErrInvalidAmount)
}

func TestTransactionInputValidate(t *testing.T) {
	cases := []struct {
		name string
		in   TransactionInput
		want error
	}{
		{"expense ok", TransactionInput{AccountID: 1, CategoryID: ptr(int64(2)), Type: Expense, Amount: MustParseMoney("50")}, nil},
		{"income ok", TransactionInput{AccountID: 1, Type: Income, Amount: MustParseMoney("50")}, nil},
		{"expense without category", TransactionInput{AccountID: 1, Type: Expense, Amount: MustParseMoney("50")}, ErrCategoryRequired},
		{"income with category", TransactionInput{AccountID: 1, CategoryID: ptr(int64(2)), Type: Income, Amount: MustParseMoney("50")}, ErrIncomeWithCategory},
		{"bad type", TransactionInput{AccountID: 1, Type: "transfer", Amount: MustParseMoney("50")}, ErrInvalidTransactionType},
		{"zero amount", TransactionInput{AccountID: 1, Type: Income}, ErrInvalidAmount},
		{"missing account", TransactionInput{Type: Income, Amount: MustParseMoney("1")}, ErrAccountRequired},
		{"long description", TransactionInput{AccountID: 1, Type: Income, Amount: MustParseMoney("1"), Description: strings.Repeat("x", MaxDescriptionLength+1)}, ErrDescriptionTooLong},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.in.Validate()
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, KindValidation, KindOf(err))
		})
	}
}

func TestErrorKinds(t *testing.T) {
	nf := NotFound("account", 7)
	assert.ErrorIs(t, nf, ErrNotFound)
	assert.NotErrorIs(t, nf, ErrConflict)
	assert.Equal(t, "account 7 not found", nf.Error())

	wrapped := errors.Join(errors.New("outer"), Conflict("name", "name already exists"))
	assert.Equal(t, KindConflict, KindOf(wrapped))

	tr := Transport(errors.New("connection refused"))
	assert.ErrorIs(t, tr, ErrTransport)
	assert.Contains(t, tr.Error(), "connection refused")

	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
}

func TestClassifyHealth(t *testing.T) {
	cases := []struct {
		allocated, spent string
		want             Health
	}{
		{"100", "0", HealthHealthy},
		{"100", "79.99", HealthHealthy},
		{"100", "80", HealthWarning},
		{"100", "100", HealthWarning},
		{"100", "100.01", HealthOverspent},
		{"0", "0", HealthHealthy},
		{"0", "5", HealthOverspent},
	}
	for _, tc := range cases {
		allocated, spent := MustParseMoney(tc.allocated), MustParseMoney(tc.spent)
		got := ClassifyHealth(allocated, spent, allocated.Sub(spent))
		assert.Equal(t, tc.want, got, "%s/%s", tc.allocated, tc.spent)
	}
	assert.Equal(t, 50.0, SpentPercentage(MustParseMoney("200"), MustParseMoney("100")))
	assert.Equal(t, 0.0, SpentPercentage(Zero, MustParseMoney("100")))
}
