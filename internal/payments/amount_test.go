package payments

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMinorUnits(t *testing.T) {
	cases := []struct {
		amount   string
		currency string
		want     int64
	}{
		{"19.99", "usd", 1999},
		{"49.98", "USD", 4998},
		{"0.01", "eur", 1},
		{"10", "gbp", 1000},
		{"10.005", "usd", 1001},
		{"10.0049", "usd", 1000},
		{"1500", "jpy", 1500},
		{"1500.5", "JPY", 1501},
		{"2500", "krw", 2500},
	}
	for _, tc := range cases {
		got, err := ToMinorUnits(decimal.RequireFromString(tc.amount), tc.currency)
		require.NoError(t, err, tc.amount)
		assert.Equal(t, tc.want, got, "%s %s", tc.amount, tc.currency)
	}
}

func TestToMinorUnitsRejectsDegenerateAmounts(t *testing.T) {
	_, err := ToMinorUnits(decimal.RequireFromString("0.004"), "usd")
	require.Error(t, err)

	_, err = ToMinorUnits(decimal.RequireFromString("-1"), "usd")
	require.Error(t, err)

	_, err = ToMinorUnits(decimal.RequireFromString("1"), "")
	require.Error(t, err)
}

func TestIsZeroDecimal(t *testing.T) {
	assert.True(t, IsZeroDecimal("JPY"))
	assert.True(t, IsZeroDecimal(" xof "))
	assert.False(t, IsZeroDecimal("usd"))
}
