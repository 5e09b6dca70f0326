package variance

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// AmountFromFloat converts a source-system float into a decimal, rejecting
// NaN and infinities. itemID and field are carried into the error.
func AmountFromFloat(itemID, field string, f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, &AmountError{ItemID: itemID, Field: field, Value: strconv.FormatFloat(f, 'g', -1, 64)}
	}
	return decimal.NewFromFloat(f), nil
}

// AmountFromString parses a decimal amount as sent by accounting reports.
// Thousands separators, a leading currency symbol and surrounding
// parentheses (negative) are accepted. Empty strings are zero.
func AmountFromString(itemID, field, s string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return decimal.Zero, nil
	}

	negative := false
	if strings.HasPrefix(raw, "(") && strings.HasSuffix(raw, ")") {
		negative = true
		raw = strings.TrimSuffix(strings.TrimPrefix(raw, "("), ")")
	}
	raw = strings.TrimLeft(raw, "$€£")
	raw = strings.ReplaceAll(raw, ",", "")

	lower := strings.ToLower(raw)
	if strings.Contains(lower, "nan") || strings.Contains(lower, "inf") {
		return decimal.Zero, &AmountError{ItemID: itemID, Field: field, Value: s}
	}

	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, &AmountError{ItemID: itemID, Field: field, Value: s}
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// MustDecimal parses s or panics. For constants and test fixtures.
func MustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
