// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts from strings
// and rounding them at presentation boundaries.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Cents is the precision every stored amount is rounded to.
const Cents = 2

// Tolerance is the rounding slack allowed between a series total and its budget.
var Tolerance = decimal.New(1, -Cents)

// ParseAmount converts a decimal string to a decimal amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and an
// optional leading sign. Digits beyond the second decimal are kept; callers
// round at presentation time with Round.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34, nil
//	ParseAmount("12,34")  -> 12.34, nil
//	ParseAmount("-3000")  -> -3000, nil
//	ParseAmount("1.2.3")  -> error
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	body := strings.TrimLeft(s, "+-")
	if len(s)-len(body) > 1 {
		return decimal.Zero, ErrInvalidAmount
	}
	parts := strings.Split(body, ".")
	if len(parts) > 2 || body == "." {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, p := range parts {
		for _, r := range p {
			if !unicode.IsDigit(r) {
				return decimal.Zero, ErrInvalidAmount
			}
		}
	}
	d, err := decimal.NewFromString(strings.TrimPrefix(s, "+"))
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// Round rounds an amount half away from zero to cents.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Cents)
}

// FormatAmount renders an amount with exactly two decimals, the form amounts are stored in.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(Cents)
}

// WithinTolerance reports whether a and b differ by at most one cent.
func WithinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Tolerance)
}
