// Package calc contains the planner's pure calculations. Nothing here does
// I/O and every function is deterministic in its arguments.
package calc

import (
	"math"

	"retireplan/internal/core"
)

// YearRow is one year of an accumulation projection. Amounts are nominal
// except RealBalance, which is in today's money.
type YearRow struct {
	Year          int     `json:"year"`
	Age           int     `json:"age"`
	MonthlySalary float64 `json:"monthlySalary"`
	Contribution  float64 `json:"contribution"`
	Growth        float64 `json:"growth"`
	Balance       float64 `json:"balance"`
	RealBalance   float64 `json:"realBalance"`
}

// Projection is the year-by-year growth of one pot.
type Projection struct {
	Rate               float64   `json:"rate"`
	StartBalance       float64   `json:"startBalance"`
	TotalContributions float64   `json:"totalContributions"`
	TotalGrowth        float64   `json:"totalGrowth"`
	FinalBalance       float64   `json:"finalBalance"`
	RealFinalBalance   float64   `json:"realFinalBalance"`
	Rows               []YearRow `json:"rows"`
}

// NetReturn converts an annual return and an annual fee, both in percent,
// into the decimal rate applied to a balance.
func NetReturn(expectedReturn, fees float64) float64 {
	return (expectedReturn - fees) / 100
}

// FutureValue is the closed form of a balance growing at rate for years,
// with annualContribution added at the end of every year:
//
//	FV = P(1+r)^n + C((1+r)^n - 1)/r, and P + C*n when r == 0.
func FutureValue(principal, annualContribution, rate float64, years int) float64 {
	if years <= 0 {
		return principal
	}
	n := float64(years)
	if rate == 0 {
		return principal + annualContribution*n
	}
	growth := math.Pow(1+rate, n)
	return core.Finite(principal*growth + annualContribution*(growth-1)/rate)
}

// Deflate expresses a nominal amount years from now in today's money.
func Deflate(amount, inflationPercent float64, years int) float64 {
	if years <= 0 {
		return amount
	}
	return core.SafeDiv(amount, math.Pow(1+inflationPercent/100, float64(years)))
}

// contributionFunc returns the annual contribution for a year and the
// monthly salary it was based on. year is 1-based.
type contributionFunc func(year int) (contribution, monthlySalary float64)

func accumulate(in core.Inputs, start, rate float64, contribute contributionFunc) Projection {
	years := in.YearsToRetirement()
	p := Projection{
		Rate:         rate,
		StartBalance: start,
		Rows:         make([]YearRow, 0, years),
	}

	balance := start
	for y := 1; y <= years; y++ {
		contribution, salary := contribute(y)
		growth := balance * rate
		balance = core.Finite(balance + growth + contribution)

		p.TotalContributions += contribution
		p.TotalGrowth += growth
		p.Rows = append(p.Rows, YearRow{
			Year:          y,
			Age:           in.CurrentAge + y,
			MonthlySalary: salary,
			Contribution:  contribution,
			Growth:        growth,
			Balance:       balance,
			RealBalance:   Deflate(balance, in.InflationRate, y),
		})
	}

	p.FinalBalance = balance
	p.RealFinalBalance = Deflate(balance, in.InflationRate, years)
	return p
}

// salaryInYear grows a monthly salary by the annual growth rate. Year 1 is
// today's salary.
func salaryInYear(monthly, growthPercent float64, year int) float64 {
	return monthly * math.Pow(1+growthPercent/100, float64(year-1))
}

// ProjectAccumulation projects the pension pot to retirement.
//
// Each year the pot earns expectedReturn net of accumulationFees, then
// receives twelve months of pensionContributionRate on the household salary,
// less depositFees. With zero salary growth the final balance equals
// FutureValue(currentSavings, contribution, rate, years).
func ProjectAccumulation(in core.Inputs) Projection {
	in = in.Normalize()
	rate := NetReturn(in.ExpectedReturn, in.AccumulationFees)
	depositFactor := 1 - in.DepositFees/100

	return accumulate(in, in.CurrentSavings, rate, func(year int) (float64, float64) {
		salary := salaryInYear(in.HouseholdSalary(), in.SalaryGrowthRate, year)
		return salary * in.PensionContributionRate / 100 * core.MonthsPerYear * depositFactor, salary
	})
}

// ProjectTrainingFund projects the training fund. Contributions are charged
// on each earner's salary up to the salary cap.
func ProjectTrainingFund(in core.Inputs) Projection {
	in = in.Normalize()
	rate := NetReturn(in.ExpectedReturn, in.AccumulationFees)

	return accumulate(in, in.TrainingFundBalance, rate, func(year int) (float64, float64) {
		var contribution, total float64
		for _, s := range in.Earners() {
			salary := salaryInYear(s, in.SalaryGrowthRate, year)
			total += salary
			contribution += math.Min(salary, in.TrainingFundSalaryCap) * in.TrainingFundContributionRate / 100
		}
		return contribution * core.MonthsPerYear, total
	})
}

// ProjectInvestments projects the self-managed portfolio.
func ProjectInvestments(in core.Inputs) Projection {
	in = in.Normalize()
	rate := NetReturn(in.ExpectedReturn, in.InvestmentFees)
	annual := in.MonthlyInvestment * core.MonthsPerYear

	return accumulate(in, in.CurrentInvestments, rate, func(int) (float64, float64) {
		return annual, 0
	})
}

// MonthlyTrainingFundContribution is the current household contribution.
func MonthlyTrainingFundContribution(in core.Inputs) float64 {
	total := 0.0
	for _, s := range in.Earners() {
		total += math.Min(s, in.TrainingFundSalaryCap) * in.TrainingFundContributionRate / 100
	}
	return total
}

// MonthlyPensionContribution is the current household pension contribution.
func MonthlyPensionContribution(in core.Inputs) float64 {
	return in.HouseholdSalary() * in.PensionContributionRate / 100 * (1 - in.DepositFees/100)
}
