package cli

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatMoney formats an amount with thousands separators and two decimals.
// e.g., 1234.5 -> "1,234.50", -900 -> "-900.00"
func FormatMoney(d decimal.Decimal) string {
	s := d.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if d.IsNegative() {
		b.WriteByte('-')
	}
	for i, c := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}

// FormatPercent formats a percentage with one decimal and an explicit sign.
// e.g., 12.345 -> "+12.3%", -5 -> "-5.0%", 0 -> "0.0%"
func FormatPercent(d decimal.Decimal) string {
	s := d.StringFixed(1) + "%"
	if d.Round(1).IsPositive() {
		return "+" + s
	}
	if s == "-0.0%" {
		return "0.0%"
	}
	return s
}
