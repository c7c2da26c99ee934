package calc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retireplan/internal/core"
)

// tolerance for currency comparisons (one agora)
const moneyTolerance = 0.01

func assertMoney(t *testing.T, expected, actual float64, description string) {
	t.Helper()
	if math.Abs(expected-actual) > moneyTolerance {
		t.Errorf("%s: expected %.2f, got %.2f (diff: %.2f)", description, expected, actual, actual-expected)
	}
}

func TestFutureValue(t *testing.T) {
	assertMoney(t, 1210, FutureValue(1000, 0, 0.10, 2), "principal only")
	assertMoney(t, 210, FutureValue(0, 100, 0.10, 2), "contributions only")
	assertMoney(t, 150, FutureValue(100, 10, 0, 5), "zero rate is linear")
	assertMoney(t, 500, FutureValue(500, 100, 0.05, 0), "no years")
	assertMoney(t, 500, FutureValue(500, 100, 0.05, -3), "negative years")
}

func TestNetReturn(t *testing.T) {
	assert.InDelta(t, 0.069, NetReturn(7, 0.1), 1e-12)
	assert.InDelta(t, -0.005, NetReturn(0, 0.5), 1e-12)
}

// Salary 15,000, contribution 18.5%, return 7%, fees 0.1%, 37 years.
func TestProjectAccumulation_ReferenceCase(t *testing.T) {
	in := core.DefaultInputs()
	require.Equal(t, 37, in.YearsToRetirement())

	p := ProjectAccumulation(in)
	require.Len(t, p.Rows, 37)
	assert.InDelta(t, 0.069, p.Rate, 1e-12)

	want := FutureValue(0, 15000*0.185*12, 0.069, 37)
	assert.InEpsilon(t, want, p.FinalBalance, 1e-9)
	assert.InDelta(t, 5216018.36, p.FinalBalance, 1)

	first := p.Rows[0]
	assert.Equal(t, 31, first.Age)
	assertMoney(t, 33300, first.Contribution, "first year contribution")
	assertMoney(t, 0, first.Growth, "no growth on an empty pot")

	last := p.Rows[len(p.Rows)-1]
	assert.Equal(t, 67, last.Age)
	assert.Equal(t, p.FinalBalance, last.Balance)
	assert.Less(t, p.RealFinalBalance, p.FinalBalance)
	assertMoney(t, p.FinalBalance, p.StartBalance+p.TotalContributions+p.TotalGrowth, "balance identity")
}

func TestProjectAccumulation_Deterministic(t *testing.T) {
	in := core.DefaultInputs()
	in.CurrentSavings = 120000
	in.SalaryGrowthRate = 2.5
	in.DepositFees = 1.5

	a := ProjectAccumulation(in)
	b := ProjectAccumulation(in)
	assert.Equal(t, a, b)
	assert.Equal(t, a, ProjectAccumulation(in.Normalize()))
}

func TestProjectAccumulation_DepositFeesAndGrowth(t *testing.T) {
	in := core.DefaultInputs()
	in.DepositFees = 2
	p := ProjectAccumulation(in)
	assertMoney(t, 33300*0.98, p.Rows[0].Contribution, "deposit fee reduces contribution")

	in.DepositFees = 0
	in.SalaryGrowthRate = 3
	p = ProjectAccumulation(in)
	assertMoney(t, 15000*1.03, p.Rows[1].MonthlySalary, "salary grows from year two")
	assert.Greater(t, p.FinalBalance, ProjectAccumulation(core.DefaultInputs()).FinalBalance)
}

func TestProjectAccumulation_NoYears(t *testing.T) {
	in := core.DefaultInputs()
	in.CurrentAge = 67
	in.RetirementAge = 67
	in.CurrentSavings = 1000

	p := ProjectAccumulation(in)
	assert.Empty(t, p.Rows)
	assert.Equal(t, 1000.0, p.FinalBalance)
}

func TestProjectTrainingFund_SalaryCap(t *testing.T) {
	in := core.DefaultInputs()
	in.CurrentMonthlySalary = 40000

	p := ProjectTrainingFund(in)
	assertMoney(t, 15712*0.10*12, p.Rows[0].Contribution, "contribution on capped salary")

	in.PlanningType = core.PlanningCouple
	in.Partner1Salary = 40000
	in.Partner2Salary = 10000
	p = ProjectTrainingFund(in)
	assertMoney(t, (15712+10000)*0.10*12, p.Rows[0].Contribution, "cap applies per earner")
	assertMoney(t, 2571.2, MonthlyTrainingFundContribution(in.Normalize()), "monthly contribution")
}

func TestProjectInvestments(t *testing.T) {
	in := core.DefaultInputs()
	in.CurrentInvestments = 50000
	in.MonthlyInvestment = 1000
	in.InvestmentFees = 1

	p := ProjectInvestments(in)
	assert.InDelta(t, 0.06, p.Rate, 1e-12)
	assert.InEpsilon(t, FutureValue(50000, 12000, 0.06, 37), p.FinalBalance, 1e-9)
}

func TestDeflate(t *testing.T) {
	assertMoney(t, 100, Deflate(102, 2, 1), "one year")
	assertMoney(t, 100, Deflate(100, 2, 0), "zero years")
	assertMoney(t, 100, Deflate(100, 0, 30), "no inflation")
}
