package core

import (
	"math"
	"testing"
)

func TestParseNumber(t *testing.T) {
	cases := []struct {
		in       string
		fallback float64
		out      float64
	}{
		{"15000", 0, 15000},
		{"15,000", 0, 15000},
		{" 1 234.5 ", 0, 1234.5},
		{"₪15,000", 0, 15000},
		{"$1,000,000", 0, 1000000},
		{"7%", 0, 7},
		{"0.1", 0, 0.1},
		{"-3", 0, -3},
		{"1e3", 0, 1000},
		{"", 0, 0},
		{"", 42, 42},
		{"abc", 0, 0},
		{"1.2.3", 0, 0},
		{"NaN", 0, 0},
		{"Inf", 5, 5},
		{"-Infinity", 0, 0},
		{"1e400", 0, 0},
	}
	for _, tc := range cases {
		got := ParseNumber(tc.in, tc.fallback)
		if math.IsNaN(got) || math.IsInf(got, 0) {
			t.Fatalf("%q produced non-finite %v", tc.in, got)
		}
		if got != tc.out {
			t.Fatalf("%q expected %v, got %v", tc.in, tc.out, got)
		}
	}
}

func TestParseInt(t *testing.T) {
	cases := []struct {
		in  string
		out int
	}{
		{"30", 30},
		{"67.9", 67},
		{"x", 18},
		{"1e20", 18},
	}
	for _, tc := range cases {
		if got := ParseInt(tc.in, 18); got != tc.out {
			t.Fatalf("%q expected %d, got %d", tc.in, tc.out, got)
		}
	}
}

func TestClampPercent(t *testing.T) {
	cases := map[float64]float64{
		-5:          0,
		0:           0,
		18.5:        18.5,
		100:         100,
		250:         100,
		math.NaN():  0,
		math.Inf(1): 100,
	}
	for in, want := range cases {
		if got := ClampPercent(in); got != want {
			t.Fatalf("ClampPercent(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestSafeDiv(t *testing.T) {
	if got := SafeDiv(1, 0); got != 0 {
		t.Fatalf("expected 0 for division by zero, got %v", got)
	}
	if got := SafeDiv(math.Inf(1), 2); got != 0 {
		t.Fatalf("expected 0 for infinite quotient, got %v", got)
	}
	if got := SafeDiv(9, 3); got != 3 {
		t.Fatalf("expected 3, got %v", got)
	}
}

func TestFormatting(t *testing.T) {
	if got := FormatAmount(1234567.6); got != "1,234,568" {
		t.Fatalf("FormatAmount = %q", got)
	}
	if got := FormatMoney(15000, "ils"); got != "₪15,000" {
		t.Fatalf("FormatMoney = %q", got)
	}
	if got := FormatMoney(10, "CHF"); got != "CHF 10" {
		t.Fatalf("FormatMoney = %q", got)
	}
	if got := FormatPercent(6.94); got != "6.9%" {
		t.Fatalf("FormatPercent = %q", got)
	}
}
