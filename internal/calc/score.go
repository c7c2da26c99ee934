package calc

import (
	"math"

	"retireplan/internal/core"
)

// Factor keys of the health score.
const (
	FactorSavingsRate     = "savingsRate"
	FactorEmergencyFund   = "emergencyFund"
	FactorRetirement      = "retirementReadiness"
	FactorDiversification = "diversification"
	FactorDebt            = "debt"
)

// Score bands.
const (
	StatusExcellent = "excellent"
	StatusGood      = "good"
	StatusFair      = "fair"
	StatusPoor      = "poor"
)

const (
	targetSavingsRate     = 0.20
	targetEmergencyMonths = 6
	debtRatioHealthy      = 0.10
	debtRatioCritical     = 0.50
	recommendBelow        = 60
)

// Factor is one weighted component of the score. Score is 0..100 and
// Weight is the share of the total in percent.
type Factor struct {
	Key    string  `json:"key"`
	Label  string  `json:"label"`
	Weight float64 `json:"weight"`
	Score  float64 `json:"score"`
	Metric float64 `json:"metric"`
}

type Recommendation struct {
	Factor  string `json:"factor"`
	Message string `json:"message"`
}

// HealthScore is a 0..100 weighted sum of factor scores.
type HealthScore struct {
	Total           int              `json:"total"`
	Status          string           `json:"status"`
	Factors         []Factor         `json:"factors"`
	Recommendations []Recommendation `json:"recommendations"`
}

var recommendations = map[string]string{
	FactorSavingsRate:     "Raise your savings rate towards 20% of gross income, for example with a monthly investment plan.",
	FactorEmergencyFund:   "Build an emergency fund covering six months of expenses.",
	FactorRetirement:      "Projected income is below your target. Consider higher contributions, a later retirement age or lower fees.",
	FactorDiversification: "Spread your portfolio across more asset classes.",
	FactorDebt:            "Debt payments take a large share of income. Prioritise paying down high-interest debt.",
}

// CalculateHealthScore scores the plan against five factors:
//
//	savings rate         25  monthly savings / salary, full marks at 20%
//	emergency fund       20  fund / monthly expenses, full marks at 6 months
//	retirement readiness 25  replacement rate / target replacement rate
//	diversification      15  1 - Herfindahl index of the allocations, normalised
//	debt                 15  debt payments / salary, 100 at <=10%, 0 at >=50%
func CalculateHealthScore(in core.Inputs, income RetirementIncome) HealthScore {
	in = in.Normalize()
	salary := in.HouseholdSalary()

	saving := MonthlyPensionContribution(in) + MonthlyTrainingFundContribution(in) + in.MonthlyInvestment
	savingsRate := core.SafeDiv(saving, salary)

	months := core.SafeDiv(in.EmergencyFund, in.MonthlyExpenses)
	var emergency float64
	switch {
	case in.MonthlyExpenses == 0 && in.EmergencyFund > 0:
		emergency = 100
	case in.MonthlyExpenses == 0:
		emergency = 0
	default:
		emergency = months / targetEmergencyMonths * 100
	}

	readiness := core.SafeDiv(income.ReplacementRate, in.TargetReplacementRate) * 100
	if in.TargetReplacementRate == 0 {
		readiness = 100
	}

	debtRatio := core.SafeDiv(in.MonthlyDebtPayments, salary)
	var debt float64
	switch {
	case salary == 0 && in.MonthlyDebtPayments > 0:
		debt = 0
	case salary == 0:
		debt = 100
	default:
		debt = debtScore(debtRatio)
	}

	factors := []Factor{
		{Key: FactorSavingsRate, Label: "Savings rate", Weight: 25, Score: savingsRate / targetSavingsRate * 100, Metric: savingsRate * 100},
		{Key: FactorEmergencyFund, Label: "Emergency fund", Weight: 20, Score: emergency, Metric: months},
		{Key: FactorRetirement, Label: "Retirement readiness", Weight: 25, Score: readiness, Metric: income.ReplacementRate},
		{Key: FactorDiversification, Label: "Diversification", Weight: 15, Score: DiversificationScore(in.Allocations()), Metric: herfindahl(in.Allocations())},
		{Key: FactorDebt, Label: "Debt load", Weight: 15, Score: debt, Metric: debtRatio * 100},
	}

	s := HealthScore{Factors: factors}
	total := 0.0
	for i := range s.Factors {
		s.Factors[i].Score = core.Clamp(s.Factors[i].Score, 0, 100)
		total += s.Factors[i].Weight * s.Factors[i].Score / 100
		if s.Factors[i].Score < recommendBelow {
			s.Recommendations = append(s.Recommendations, Recommendation{
				Factor:  s.Factors[i].Key,
				Message: recommendations[s.Factors[i].Key],
			})
		}
	}
	s.Total = int(core.Clamp(math.Round(total), 0, 100))
	s.Status = ScoreStatus(s.Total)
	return s
}

// ScoreStatus maps a total score to its band.
func ScoreStatus(total int) string {
	switch {
	case total >= 80:
		return StatusExcellent
	case total >= 60:
		return StatusGood
	case total >= 40:
		return StatusFair
	default:
		return StatusPoor
	}
}

func debtScore(ratio float64) float64 {
	switch {
	case ratio <= debtRatioHealthy:
		return 100
	case ratio >= debtRatioCritical:
		return 0
	default:
		return (debtRatioCritical - ratio) / (debtRatioCritical - debtRatioHealthy) * 100
	}
}

func herfindahl(allocations []float64) float64 {
	total := 0.0
	for _, a := range allocations {
		total += a
	}
	if total == 0 {
		return 0
	}
	hhi := 0.0
	for _, a := range allocations {
		w := a / total
		hhi += w * w
	}
	return hhi
}

// DiversificationScore is 100 for an even split and 0 for a single asset
// class or no allocation at all.
func DiversificationScore(allocations []float64) float64 {
	n := float64(len(allocations))
	if n < 2 {
		return 0
	}
	hhi := herfindahl(allocations)
	if hhi == 0 {
		return 0
	}
	return core.Clamp((1-hhi)/(1-1/n)*100, 0, 100)
}
