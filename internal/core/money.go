// Package core provides the planner's domain types and number handling.
//
// This file contains the lenient number parsing used for every user-entered
// value and the amount formatting used by templates and reports.
package core

import (
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// MonthsPerYear is used wherever a monthly amount is annualised.
const MonthsPerYear = 12

var numberReplacer = strings.NewReplacer(
	",", "",
	"_", "",
	" ", "",
	"'", "",
	"\u00a0", "",
	"₪", "",
	"$", "",
	"€", "",
	"£", "",
	"%", "",
)

// ParseNumber converts user input into a finite float.
//
// Thousands separators, currency and percent symbols are stripped before
// parsing. Anything that does not parse, or parses to NaN or ±Inf, yields
// fallback. The result is never NaN or Inf as long as fallback is finite.
//
// Examples:
//
//	ParseNumber("15,000", 0)  -> 15000
//	ParseNumber("₪ 1 234.5", 0) -> 1234.5
//	ParseNumber("7%", 0)      -> 7
//	ParseNumber("abc", 0)     -> 0
//	ParseNumber("NaN", 3)     -> 3
func ParseNumber(s string, fallback float64) float64 {
	s = numberReplacer.Replace(strings.TrimSpace(s))
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}

// ParseInt is ParseNumber truncated toward zero.
func ParseInt(s string, fallback int) int {
	v := ParseNumber(s, math.NaN())
	if math.IsNaN(v) || v > math.MaxInt32 || v < math.MinInt32 {
		return fallback
	}
	return int(v)
}

// Finite returns 0 for NaN and ±Inf.
func Finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Clamp bounds v to [lo, hi]. NaN becomes lo.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampPercent bounds a percentage field to [0, 100].
func ClampPercent(v float64) float64 {
	return Clamp(v, 0, 100)
}

// NonNegative returns max(0, v) with NaN and Inf mapped to 0.
func NonNegative(v float64) float64 {
	v = Finite(v)
	if v < 0 {
		return 0
	}
	return v
}

// SafeDiv returns a/b, or 0 when b is zero or the quotient is not finite.
func SafeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return Finite(a / b)
}

// ClampInt bounds v to [lo, hi].
func ClampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

// FormatAmount renders a whole-unit amount with thousands separators.
func FormatAmount(v float64) string {
	return humanize.FormatFloat("#,###.", math.Round(Finite(v)))
}

// FormatMoney renders an amount followed by its currency symbol.
func FormatMoney(v float64, currency string) string {
	return CurrencySymbol(currency) + FormatAmount(v)
}

// FormatPercent renders a percentage with one decimal.
func FormatPercent(v float64) string {
	return strconv.FormatFloat(Finite(v), 'f', 1, 64) + "%"
}

// CurrencySymbol maps ISO codes to their display symbol.
func CurrencySymbol(code string) string {
	switch strings.ToUpper(code) {
	case "ILS":
		return "₪"
	case "USD":
		return "$"
	case "EUR":
		return "€"
	case "GBP":
		return "£"
	default:
		return strings.ToUpper(code) + " "
	}
}
