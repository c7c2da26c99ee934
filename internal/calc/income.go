package calc

import (
	"math"

	"retireplan/internal/core"
)

// RetirementIncome is the projected monthly income at retirement. Nominal
// amounts are at the retirement date; Real* amounts are in today's money.
type RetirementIncome struct {
	PensionCapital      float64 `json:"pensionCapital"`
	TrainingFundCapital float64 `json:"trainingFundCapital"`
	InvestmentCapital   float64 `json:"investmentCapital"`
	RSUCapital          float64 `json:"rsuCapital"`
	TotalCapital        float64 `json:"totalCapital"`

	MonthlyPension      float64 `json:"monthlyPension"`
	MonthlyTrainingFund float64 `json:"monthlyTrainingFund"`
	MonthlyInvestments  float64 `json:"monthlyInvestments"`
	MonthlyRSU          float64 `json:"monthlyRsu"`
	TotalMonthly        float64 `json:"totalMonthly"`
	RealTotalMonthly    float64 `json:"realTotalMonthly"`

	CurrentSalary   float64 `json:"currentSalary"`
	ReplacementRate float64 `json:"replacementRate"`
	TargetMonthly   float64 `json:"targetMonthly"`
	Gap             float64 `json:"gap"`
	OnTrack         bool    `json:"onTrack"`
}

// ProjectIncome turns the pots into a monthly income. The pension is
// annuitised with annuityFactor; the other pots are drawn at withdrawalRate.
// The replacement rate compares today's-money income with today's salary.
func ProjectIncome(in core.Inputs, pension, trainingFund, investments float64, rsu float64) RetirementIncome {
	in = in.Normalize()
	draw := in.WithdrawalRate / 100 / core.MonthsPerYear

	r := RetirementIncome{
		PensionCapital:      pension,
		TrainingFundCapital: trainingFund,
		InvestmentCapital:   investments,
		RSUCapital:          rsu,
		TotalCapital:        pension + trainingFund + investments + rsu,

		MonthlyPension:      core.SafeDiv(pension, in.AnnuityFactor),
		MonthlyTrainingFund: trainingFund * draw,
		MonthlyInvestments:  investments * draw,
		MonthlyRSU:          rsu * draw,

		CurrentSalary: in.HouseholdSalary(),
	}
	r.TotalMonthly = r.MonthlyPension + r.MonthlyTrainingFund + r.MonthlyInvestments + r.MonthlyRSU
	r.RealTotalMonthly = Deflate(r.TotalMonthly, in.InflationRate, in.YearsToRetirement())
	r.ReplacementRate = core.SafeDiv(r.RealTotalMonthly, r.CurrentSalary) * 100
	r.TargetMonthly = r.CurrentSalary * in.TargetReplacementRate / 100
	r.Gap = math.Max(0, r.TargetMonthly-r.RealTotalMonthly)
	r.OnTrack = r.Gap == 0
	return r
}
