package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMoney(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1.00", true},
		{"1.0", "1.00", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{"0.01", "0.01", true},
		{"1.005", "1.01", true}, // half-up rounding
		{" 2.50 ", "2.50", true},
		{"-1", "-1.00", true},
		{"0", "0.00", true},
		{".5", "0.50", true},
		{"+3", "3.00", true},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"1e3", "", false},
		{"1 000", "", false},
		{"€5", "", false},
		{"", "", false},
		{"-", "", false},
		{"1234567890123456", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseMoney(tc.in)
			if !tc.ok {
				require.ErrorIs(t, err, ErrInvalidMoney)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.out, got.String())
		})
	}
}

func TestMoneyCents(t *testing.T) {
	assert.Equal(t, int64(12345), MustParseMoney("123.45").Cents())
	assert.Equal(t, int64(-50), MustParseMoney("-0.5").Cents())
	assert.Equal(t, "0.07", MoneyFromCents(7).String())
	assert.True(t, MoneyFromCents(12345).Equal(MustParseMoney("123.45")))
}

func TestMoneyArithmeticIsExact(t *testing.T) {
	// 0.1 + 0.2 must be exactly 0.30.
	sum := MustParseMoney("0.1").Add(MustParseMoney("0.2"))
	assert.Equal(t, "0.30", sum.String())
	assert.True(t, sum.Equal(MustParseMoney("0.3")))

	diff := MustParseMoney("100").Sub(MustParseMoney("150.25"))
	assert.True(t, diff.IsNegative())
	assert.Equal(t, "-50.25", diff.String())
	assert.Equal(t, "50.25", diff.Neg().String())

	assert.Equal(t, "6.00", SumMoney(MustParseMoney("1"), MustParseMoney("2"), MustParseMoney("3")).String())
	assert.Equal(t, "0.00", SumMoney().String())
}

func TestMoneyValidate(t *testing.T) {
	assert.NoError(t, MustParseMoney("0.01").Validate())
	assert.ErrorIs(t, Zero.Validate(), ErrInvalidAmount)
	assert.ErrorIs(t, MustParseMoney("-3").Validate(), ErrInvalidAmount)
}

func TestMoneyJSON(t *testing.T) {
	out, err := json.Marshal(MustParseMoney("200"))
	require.NoError(t, err)
	assert.JSONEq(t, `"200.00"`, string(out))

	cases := map[string]string{
		`"12.34"`: "12.34",
		`"12,34"`: "12.34",
		`12.34`:   "12.34",
		`50`:      "50.00",
		`null`:    "0.00",
	}
	for in, want := range cases {
		var m Money
		require.NoError(t, json.Unmarshal([]byte(in), &m), in)
		assert.Equal(t, want, m.String(), in)
	}

	var m Money
	assert.ErrorIs(t, json.Unmarshal([]byte(`"twelve"`), &m), ErrInvalidMoney)
	assert.ErrorIs(t, json.Unmarshal([]byte(`true`), &m), ErrInvalidMoney)
}

func TestMoneyScan(t *testing.T) {
	var m Money
	require.NoError(t, m.Scan(int64(995)))
	assert.Equal(t, "9.95", m.String())

	v, err := m.Value()
	require.NoError(t, err)
	assert.Equal(t, int64(995), v)

	assert.Error(t, m.Scan("9.95"))
}

func TestMoneyStoredCents(t *testing.T) {
	top := MustParseMoney("999999999999999.99")
	cents, err := top.StoredCents()
	require.NoError(t, err)
	assert.Equal(t, int64(99999999999999999), cents)
	assert.True(t, top.Neg().InRange())

	over := top.Add(MustParseMoney("0.01"))
	assert.False(t, over.InRange())
	_, err = over.StoredCents()
	assert.ErrorIs(t, err, ErrAmountOutOfRange)

	// Far beyond int64 cents the value must not wrap around.
	huge := Zero
	for i := 0; i < 100; i++ {
		huge = huge.Add(top)
	}
	_, err = huge.Value()
	assert.ErrorIs(t, err, ErrAmountOutOfRange)
}
