package tables

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tb, err := Load()
	require.NoError(t, err)

	again, err := Load()
	require.NoError(t, err)
	assert.Same(t, tb, again)

	assert.Len(t, tb.IncomeTax.Brackets, 7)
	assert.Equal(t, 242.0, tb.IncomeTax.CreditPointValue)
	assert.Equal(t, 15712.0, tb.TrainingFund.SalaryCap)
	assert.Equal(t, 49030.0, tb.NationalInsurance.Ceiling)
}

func TestFallbackRate(t *testing.T) {
	tb := MustLoad()

	cases := []struct {
		code  string
		rate  float64
		known bool
	}{
		{"USD", 3.70, true},
		{"eur", 4.00, true},
		{"GBP", 4.70, true},
		{"ILS", 1, true},
		{"XYZ", 1, false},
	}
	for _, tc := range cases {
		rate, ok := tb.FallbackRate(tc.code)
		assert.Equal(t, tc.rate, rate, tc.code)
		assert.Equal(t, tc.known, ok, tc.code)
	}
}

func TestFallbackQuote(t *testing.T) {
	tb := MustLoad()

	q, ok := tb.FallbackQuote("aapl")
	assert.True(t, ok)
	assert.Equal(t, 190.0, q)

	q, ok = tb.FallbackQuote("ZZZZ")
	assert.False(t, ok)
	assert.Zero(t, q)

	assert.Contains(t, tb.Symbols(), "NVDA")
	assert.IsIncreasing(t, tb.Symbols())
}

func TestVPWRate(t *testing.T) {
	tb := MustLoad()
	assert.Equal(t, 0.030, tb.VPWRate(40))
	assert.Equal(t, 0.030, tb.VPWRate(55))
	assert.Equal(t, 0.045, tb.VPWRate(67))
	assert.Equal(t, 0.350, tb.VPWRate(100))
	assert.Equal(t, 0.350, tb.VPWRate(110))

	prev := 0.0
	for age := 55; age <= 100; age++ {
		rate := tb.VPWRate(age)
		assert.Greater(t, rate, prev, "rate should rise with age %d", age)
		prev = rate
	}
}

func TestMarginalRate(t *testing.T) {
	tb := MustLoad()
	assert.Equal(t, 0.10, tb.MarginalRate(5000))
	assert.Equal(t, 0.10, tb.MarginalRate(7010))
	assert.Equal(t, 0.20, tb.MarginalRate(15000))
	assert.Equal(t, 0.35, tb.MarginalRate(30000))
	assert.Equal(t, 0.50, tb.MarginalRate(100000))
}

func TestParseRejectsBadTables(t *testing.T) {
	_, err := Parse([]byte("incomeTax: [not a map"))
	require.Error(t, err)

	_, err = Parse([]byte(`
incomeTax:
  brackets:
    - {upTo: 1000, rate: 0.1}
    - {upTo: 500, rate: 0.2}
    - {upTo: 200, rate: 0.3}
nationalInsurance: {reducedThreshold: 10, ceiling: 5}
trainingFund: {salaryCap: 0}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not increasing")
	assert.Contains(t, err.Error(), "top bracket must be open")
	assert.Contains(t, err.Error(), "national insurance")
	assert.Contains(t, err.Error(), "vpw table missing age 55")
}
