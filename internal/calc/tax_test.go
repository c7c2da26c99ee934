package calc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retireplan/internal/core"
	"retireplan/internal/tables"
)

// Monthly brackets: 10% to 7,010, 14% to 10,060, 20% to 16,150, 31% to 22,440,
// 35% to 46,690, 47% to 60,130, 50% above. Credit point worth 242.

func TestIncomeTaxOnBrackets(t *testing.T) {
	brackets := tables.MustLoad().IncomeTax.Brackets

	cases := []struct {
		income float64
		want   float64
	}{
		{0, 0},
		{-100, 0},
		{5000, 500},
		{7010, 701},
		{10060, 701 + 427},
		{15000, 701 + 427 + 988},
		{70000, 701 + 427 + 1218 + 1949.9 + 8487.5 + 6316.8 + 4935},
	}
	for _, tc := range cases {
		assertMoney(t, tc.want, IncomeTaxOnBrackets(tc.income, brackets), "income tax")
	}
}

func TestSocialContributions(t *testing.T) {
	ni := tables.MustLoad().NationalInsurance

	n, h := SocialContributions(5000, ni)
	assertMoney(t, 20, n, "reduced national insurance")
	assertMoney(t, 155, h, "reduced health tax")

	n, h = SocialContributions(15000, ni)
	assertMoney(t, 30.088+523.46, n, "national insurance")
	assertMoney(t, 233.182+373.9, h, "health tax")

	capped, _ := SocialContributions(49030, ni)
	above, _ := SocialContributions(90000, ni)
	assertMoney(t, capped, above, "nothing above the ceiling")
}

func TestEarnerTax_ReferenceSalary(t *testing.T) {
	tb := tables.MustLoad()
	b := EarnerTax(15000, core.DefaultInputs(), tb)

	assertMoney(t, 2116, b.IncomeTaxBeforeCredits, "tax before credits")
	assertMoney(t, 544.5, b.CreditPointsValue, "2.25 credit points")
	assertMoney(t, 1571.5, b.IncomeTax, "income tax")
	assertMoney(t, 553.548, b.NationalInsurance, "national insurance")
	assertMoney(t, 607.082, b.HealthTax, "health tax")
	assertMoney(t, 900, b.PensionDeduction, "employee pension 6%")
	assertMoney(t, 375, b.TrainingFundDeduction, "employee training fund 2.5%")
	assertMoney(t, 10992.87, b.Net, "net salary")
	assert.InDelta(t, 18.2142, b.EffectiveRate, 0.001)
	assert.Equal(t, 20.0, b.MarginalRate)
	assertMoney(t, b.Gross, b.Net+b.TotalDeductions, "net plus deductions is gross")
}

func TestEarnerTax_CreditsNeverMakeTaxNegative(t *testing.T) {
	in := core.DefaultInputs()
	in.CreditPoints = 10
	b := EarnerTax(3000, in, tables.MustLoad())
	assert.Zero(t, b.IncomeTax)
	assertMoney(t, 300, b.CreditPointsValue, "credits limited to tax due")
}

func TestEarnerTax_Zero(t *testing.T) {
	b := EarnerTax(0, core.DefaultInputs(), tables.MustLoad())
	assert.Zero(t, b.TotalDeductions)
	assert.Zero(t, b.Net)
	assert.Zero(t, b.EffectiveRate)
}

func TestCalculateTax_Couple(t *testing.T) {
	tb := tables.MustLoad()
	in := core.DefaultInputs()
	in.PlanningType = core.PlanningCouple
	in.Partner1Salary = 30000
	in.Partner2Salary = 15000

	h := CalculateTax(in, tb)
	require.Len(t, h.Earners, 2)

	single := EarnerTax(15000, in, tb)
	assert.Equal(t, single, h.Earners[1])
	assertMoney(t, 45000, h.Total.Gross, "household gross")
	assertMoney(t, h.Earners[0].Net+h.Earners[1].Net, h.Total.Net, "household net")
	assert.Equal(t, 35.0, h.Total.MarginalRate)
	assertMoney(t, h.Total.Gross, h.Total.Net+h.Total.TotalDeductions, "net plus deductions is gross")
}
