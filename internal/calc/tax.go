package calc

import (
	"math"

	"retireplan/internal/core"
	"retireplan/internal/tables"
)

// TaxBreakdown is one earner's monthly payslip.
type TaxBreakdown struct {
	Gross                  float64 `json:"gross"`
	IncomeTaxBeforeCredits float64 `json:"incomeTaxBeforeCredits"`
	CreditPointsValue      float64 `json:"creditPointsValue"`
	IncomeTax              float64 `json:"incomeTax"`
	NationalInsurance      float64 `json:"nationalInsurance"`
	HealthTax              float64 `json:"healthTax"`
	PensionDeduction       float64 `json:"pensionDeduction"`
	TrainingFundDeduction  float64 `json:"trainingFundDeduction"`
	TotalTax               float64 `json:"totalTax"`
	TotalDeductions        float64 `json:"totalDeductions"`
	Net                    float64 `json:"net"`
	EffectiveRate          float64 `json:"effectiveRate"`
	MarginalRate           float64 `json:"marginalRate"`
}

// HouseholdTax holds a breakdown per earner and their sum.
type HouseholdTax struct {
	Earners []TaxBreakdown `json:"earners"`
	Total   TaxBreakdown   `json:"total"`
}

// IncomeTaxOnBrackets applies progressive monthly brackets to income.
func IncomeTaxOnBrackets(income float64, brackets []tables.Bracket) float64 {
	if income <= 0 {
		return 0
	}

	var total, lower float64
	for _, b := range brackets {
		if income <= lower {
			break
		}
		upper := b.UpTo
		if upper == 0 {
			upper = math.Inf(1)
		}
		if taxable := math.Min(income, upper) - lower; taxable > 0 {
			total += taxable * b.Rate
		}
		lower = upper
	}
	return total
}

// SocialContributions returns national insurance and health tax on a monthly
// salary: a reduced rate up to the threshold, the full rate up to the ceiling
// and nothing above it.
func SocialContributions(gross float64, ni tables.NationalInsurance) (nationalInsurance, health float64) {
	base := math.Min(core.NonNegative(gross), ni.Ceiling)
	reduced := math.Min(base, ni.ReducedThreshold)
	full := math.Max(0, base-ni.ReducedThreshold)
	return reduced*ni.ReducedRate + full*ni.FullRate,
		reduced*ni.HealthReducedRate + full*ni.HealthFullRate
}

// EarnerTax computes the payslip for one monthly gross salary.
func EarnerTax(gross float64, in core.Inputs, t *tables.Tables) TaxBreakdown {
	in = in.Normalize()
	gross = core.NonNegative(gross)

	b := TaxBreakdown{Gross: gross}
	b.IncomeTaxBeforeCredits = IncomeTaxOnBrackets(gross, t.IncomeTax.Brackets)
	b.CreditPointsValue = math.Min(in.CreditPoints*t.IncomeTax.CreditPointValue, b.IncomeTaxBeforeCredits)
	b.IncomeTax = b.IncomeTaxBeforeCredits - b.CreditPointsValue
	b.NationalInsurance, b.HealthTax = SocialContributions(gross, t.NationalInsurance)
	b.PensionDeduction = gross * in.EmployeePensionRate / 100
	b.TrainingFundDeduction = math.Min(gross, in.TrainingFundSalaryCap) * in.EmployeeTrainingFundRate / 100
	b.finish(t.MarginalRate(gross) * 100)
	return b
}

func (b *TaxBreakdown) finish(marginal float64) {
	b.TotalTax = b.IncomeTax + b.NationalInsurance + b.HealthTax
	b.TotalDeductions = b.TotalTax + b.PensionDeduction + b.TrainingFundDeduction
	b.Net = b.Gross - b.TotalDeductions
	b.EffectiveRate = core.SafeDiv(b.TotalTax, b.Gross) * 100
	b.MarginalRate = marginal
}

// CalculateTax returns the payslip of every earner in the plan and the sum.
// The household marginal rate is the highest earner marginal rate.
func CalculateTax(in core.Inputs, t *tables.Tables) HouseholdTax {
	in = in.Normalize()
	var h HouseholdTax
	marginal := 0.0
	for _, gross := range in.Earners() {
		b := EarnerTax(gross, in, t)
		h.Earners = append(h.Earners, b)

		h.Total.Gross += b.Gross
		h.Total.IncomeTaxBeforeCredits += b.IncomeTaxBeforeCredits
		h.Total.CreditPointsValue += b.CreditPointsValue
		h.Total.IncomeTax += b.IncomeTax
		h.Total.NationalInsurance += b.NationalInsurance
		h.Total.HealthTax += b.HealthTax
		h.Total.PensionDeduction += b.PensionDeduction
		h.Total.TrainingFundDeduction += b.TrainingFundDeduction
		marginal = math.Max(marginal, b.MarginalRate)
	}
	h.Total.finish(marginal)
	return h
}
