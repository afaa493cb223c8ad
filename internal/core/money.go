// Package core holds the debt-ledger domain model.
//
// This file contains amount parsing and formatting. All monetary values are
// whole rupiah: integers at smallest whole-currency-unit granularity, no
// fractional amounts anywhere in the system.
package core

import (
	"strconv"
	"strings"
	"unicode"
)

// ParseAmount converts user input to a positive whole-rupiah amount.
//
// Only plain digit strings are accepted: signs, separators and decimals are
// rejected, as are empty strings and zero.
//
// Examples:
//
//	ParseAmount("5000")  -> 5000, nil
//	ParseAmount("0")     -> 0, ErrInvalidAmount
//	ParseAmount("-5")    -> 0, ErrInvalidAmount
//	ParseAmount("abc")   -> 0, ErrInvalidAmount
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if v <= 0 {
		return 0, ErrInvalidAmount
	}
	return v, nil
}

// FormatRupiah renders an amount with id-ID thousands grouping, e.g.
// "Rp 10.000". Negative values keep the sign ahead of the prefix.
func FormatRupiah(amount int64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(d)
	}
	if neg {
		return "-Rp " + b.String()
	}
	return "Rp " + b.String()
}
