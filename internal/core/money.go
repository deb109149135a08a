// Package core provides the purchase domain model, amount parsing and
// the recency grouping used by the list view.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ParseAmount converts user input into a strictly positive decimal.
//
// Both dot (12.34) and comma (12,34) decimal separators are accepted.
// Signs, exponents, thousands separators and zero are rejected. A comma
// followed by exactly three digits reads as a thousands separator and is
// rejected rather than guessed.
//
// Examples:
//
//	ParseAmount("12.50") -> 12.5, nil
//	ParseAmount("12,5")  -> 12.5, nil
//	ParseAmount("1,000") -> 0, ErrInvalidAmount
//	ParseAmount("-5")    -> 0, ErrInvalidAmount
//	ParseAmount("abc")   -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	if i := strings.IndexByte(s, ','); i >= 0 {
		if len(s)-i-1 == 3 {
			return decimal.Zero, ErrInvalidAmount
		}
		s = strings.ReplaceAll(s, ",", ".")
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return decimal.Zero, ErrInvalidAmount
	}
	if parts[0] == "" && (len(parts) == 1 || parts[1] == "") {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, part := range parts {
		for _, r := range part {
			if !unicode.IsDigit(r) || r > unicode.MaxASCII {
				return decimal.Zero, ErrInvalidAmount
			}
		}
	}
	if parts[0] == "" {
		s = "0" + s
	}
	d, err := decimal.NewFromString(strings.TrimSuffix(s, "."))
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// SumAmounts totals the amounts of the given purchases.
func SumAmounts(purchases []Purchase) decimal.Decimal {
	total := decimal.Zero
	for _, p := range purchases {
		total = total.Add(p.Amount)
	}
	return total
}
