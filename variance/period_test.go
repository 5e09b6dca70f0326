package variance_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/variance-engine/variance"
)

func TestParsePeriod(t *testing.T) {
	p, err := variance.ParsePeriod("2024-02")
	require.NoError(t, err)

	assert.Equal(t, "2024-02", p.Label)
	assert.Equal(t, time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC), p.Start)
	assert.Equal(t, time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC), p.End)
	assert.True(t, p.Valid())
	assert.True(t, p.Contains(time.Date(2024, time.February, 15, 0, 0, 0, 0, time.UTC)))
	assert.False(t, p.Contains(time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)))
}

func TestParsePeriod_Invalid(t *testing.T) {
	for _, label := range []string{"", "2024", "2024-13", "March 2024"} {
		_, err := variance.ParsePeriod(label)
		assert.ErrorIs(t, err, variance.ErrInvalidPeriod, label)
	}
}

func TestPeriod_PreviousAndNext(t *testing.T) {
	jan := variance.MustParsePeriod("2025-01")

	assert.Equal(t, "2024-12", jan.Previous().Label)
	assert.Equal(t, "2025-02", jan.Next().Label)
	assert.Equal(t, "2024-12", variance.Period{Label: "2025-01"}.Previous().Label)
}

func TestAmountFromString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1,234.56", "1234.56"},
		{"$500", "500"},
		{"(250.00)", "-250"},
		{"-12.5", "-12.5"},
		{"", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := variance.AmountFromString("item", "amount", tt.in)
			require.NoError(t, err)
			assertDecimal(t, tt.want, got)
		})
	}
}

func TestAmountFromString_RejectsNonFinite(t *testing.T) {
	for _, in := range []string{"NaN", "Infinity", "-inf", "12abc"} {
		_, err := variance.AmountFromString("item-7", "amount", in)
		require.Error(t, err, in)

		var ae *variance.AmountError
		require.True(t, errors.As(err, &ae))
		assert.Equal(t, "item-7", ae.ItemID)
		assert.True(t, variance.IsValidationError(err))
	}
}

func TestAmountFromFloat(t *testing.T) {
	d, err := variance.AmountFromFloat("x", "amount", 12.25)
	require.NoError(t, err)
	assertDecimal(t, "12.25", d)

	_, err = variance.AmountFromFloat("x", "amount", math.NaN())
	assert.ErrorIs(t, err, variance.ErrInvalidAmount)
	_, err = variance.AmountFromFloat("x", "amount", math.Inf(-1))
	assert.ErrorIs(t, err, variance.ErrInvalidAmount)
}
