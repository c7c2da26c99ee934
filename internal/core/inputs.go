package core

import (
	"regexp"
	"strings"
)

const (
	PlanningSingle = "single"
	PlanningCouple = "couple"

	DefaultCurrency              = "ILS"
	DefaultTrainingFundSalaryCap = 15712
	DefaultAnnuityFactor         = 200
)

var (
	symbolPattern   = regexp.MustCompile(`^[A-Z0-9.\-]{1,10}$`)
	currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)
)

// Inputs is the shared planner record every wizard step writes into and every
// calculation reads from. JSON names are the wire names used by the browser.
type Inputs struct {
	PlanningType   string `json:"planningType" yaml:"planningType"`
	CurrentAge     int    `json:"currentAge" yaml:"currentAge"`
	RetirementAge  int    `json:"retirementAge" yaml:"retirementAge"`
	LifeExpectancy int    `json:"lifeExpectancy" yaml:"lifeExpectancy"`
	Currency       string `json:"currency" yaml:"currency"`

	CurrentMonthlySalary float64 `json:"currentMonthlySalary" yaml:"currentMonthlySalary"`
	Partner1Salary       float64 `json:"partner1Salary" yaml:"partner1Salary"`
	Partner2Salary       float64 `json:"partner2Salary" yaml:"partner2Salary"`
	SalaryGrowthRate     float64 `json:"salaryGrowthRate" yaml:"salaryGrowthRate"`
	CreditPoints         float64 `json:"creditPoints" yaml:"creditPoints"`

	CurrentSavings          float64 `json:"currentSavings" yaml:"currentSavings"`
	PensionContributionRate float64 `json:"pensionContributionRate" yaml:"pensionContributionRate"`
	EmployeePensionRate     float64 `json:"employeePensionRate" yaml:"employeePensionRate"`
	AccumulationFees        float64 `json:"accumulationFees" yaml:"accumulationFees"`
	DepositFees             float64 `json:"depositFees" yaml:"depositFees"`
	ExpectedReturn          float64 `json:"expectedReturn" yaml:"expectedReturn"`
	RetirementReturn        float64 `json:"retirementReturn" yaml:"retirementReturn"`
	InflationRate           float64 `json:"inflationRate" yaml:"inflationRate"`
	AnnuityFactor           float64 `json:"annuityFactor" yaml:"annuityFactor"`

	TrainingFundBalance          float64 `json:"trainingFundBalance" yaml:"trainingFundBalance"`
	TrainingFundContributionRate float64 `json:"trainingFundContributionRate" yaml:"trainingFundContributionRate"`
	EmployeeTrainingFundRate     float64 `json:"employeeTrainingFundRate" yaml:"employeeTrainingFundRate"`
	TrainingFundSalaryCap        float64 `json:"trainingFundSalaryCap" yaml:"trainingFundSalaryCap"`

	CurrentInvestments   float64 `json:"currentInvestments" yaml:"currentInvestments"`
	MonthlyInvestment    float64 `json:"monthlyInvestment" yaml:"monthlyInvestment"`
	InvestmentFees       float64 `json:"investmentFees" yaml:"investmentFees"`
	EmergencyFund        float64 `json:"emergencyFund" yaml:"emergencyFund"`
	MonthlyExpenses      float64 `json:"monthlyExpenses" yaml:"monthlyExpenses"`
	MonthlyDebtPayments  float64 `json:"monthlyDebtPayments" yaml:"monthlyDebtPayments"`
	StocksAllocation     float64 `json:"stocksAllocation" yaml:"stocksAllocation"`
	BondsAllocation      float64 `json:"bondsAllocation" yaml:"bondsAllocation"`
	CashAllocation       float64 `json:"cashAllocation" yaml:"cashAllocation"`
	RealEstateAllocation float64 `json:"realEstateAllocation" yaml:"realEstateAllocation"`
	CryptoAllocation     float64 `json:"cryptoAllocation" yaml:"cryptoAllocation"`

	RSUUnits        float64 `json:"rsuUnits" yaml:"rsuUnits"`
	RSUSymbol       string  `json:"rsuSymbol" yaml:"rsuSymbol"`
	RSUPrice        float64 `json:"rsuPrice" yaml:"rsuPrice"`
	RSUCurrency     string  `json:"rsuCurrency" yaml:"rsuCurrency"`
	RSUVestingYears int     `json:"rsuVestingYears" yaml:"rsuVestingYears"`
	RSUTaxRate      float64 `json:"rsuTaxRate" yaml:"rsuTaxRate"`

	TargetReplacementRate float64 `json:"targetReplacementRate" yaml:"targetReplacementRate"`
	WithdrawalRate        float64 `json:"withdrawalRate" yaml:"withdrawalRate"`
}

// DefaultInputs returns the values a fresh wizard starts from.
func DefaultInputs() Inputs {
	return Inputs{
		PlanningType:   PlanningSingle,
		CurrentAge:     30,
		RetirementAge:  67,
		LifeExpectancy: 87,
		Currency:       DefaultCurrency,

		CurrentMonthlySalary: 15000,
		CreditPoints:         2.25,

		PensionContributionRate: 18.5,
		EmployeePensionRate:     6,
		AccumulationFees:        0.1,
		ExpectedReturn:          7,
		RetirementReturn:        4,
		InflationRate:           2,
		AnnuityFactor:           DefaultAnnuityFactor,

		TrainingFundContributionRate: 10,
		EmployeeTrainingFundRate:     2.5,
		TrainingFundSalaryCap:        DefaultTrainingFundSalaryCap,

		InvestmentFees:   0.5,
		StocksAllocation: 60,
		BondsAllocation:  30,
		CashAllocation:   10,

		RSUCurrency:     "USD",
		RSUVestingYears: 4,
		RSUTaxRate:      25,

		TargetReplacementRate: 70,
		WithdrawalRate:        4,
	}
}

// Normalize applies every range rule in one place. Normalize is idempotent.
func (in Inputs) Normalize() Inputs {
	out := in

	switch strings.ToLower(strings.TrimSpace(out.PlanningType)) {
	case PlanningCouple:
		out.PlanningType = PlanningCouple
	default:
		out.PlanningType = PlanningSingle
	}

	out.CurrentAge = ClampInt(out.CurrentAge, 18, 100)
	out.RetirementAge = ClampInt(out.RetirementAge, out.CurrentAge, 100)
	out.LifeExpectancy = ClampInt(out.LifeExpectancy, out.RetirementAge+1, 120)

	out.Currency = normalizeCurrency(out.Currency, DefaultCurrency)

	for _, p := range []*float64{
		&out.CurrentMonthlySalary, &out.Partner1Salary, &out.Partner2Salary,
		&out.CurrentSavings, &out.TrainingFundBalance,
		&out.CurrentInvestments, &out.MonthlyInvestment,
		&out.EmergencyFund, &out.MonthlyExpenses, &out.MonthlyDebtPayments,
		&out.RSUUnits, &out.RSUPrice,
	} {
		*p = NonNegative(*p)
	}

	for _, p := range []*float64{
		&out.SalaryGrowthRate,
		&out.PensionContributionRate, &out.EmployeePensionRate,
		&out.AccumulationFees, &out.DepositFees,
		&out.ExpectedReturn, &out.RetirementReturn, &out.InflationRate,
		&out.TrainingFundContributionRate, &out.EmployeeTrainingFundRate,
		&out.InvestmentFees,
		&out.StocksAllocation, &out.BondsAllocation, &out.CashAllocation,
		&out.RealEstateAllocation, &out.CryptoAllocation,
		&out.RSUTaxRate, &out.TargetReplacementRate, &out.WithdrawalRate,
	} {
		*p = ClampPercent(*p)
	}

	out.CreditPoints = Clamp(out.CreditPoints, 0, 20)

	if out.AnnuityFactor = Finite(out.AnnuityFactor); out.AnnuityFactor <= 0 {
		out.AnnuityFactor = DefaultAnnuityFactor
	}
	if out.TrainingFundSalaryCap = Finite(out.TrainingFundSalaryCap); out.TrainingFundSalaryCap <= 0 {
		out.TrainingFundSalaryCap = DefaultTrainingFundSalaryCap
	}

	if total := sum(out.Allocations()); total > 100+1e-9 {
		scale := 100 / total
		for _, p := range out.allocations() {
			*p *= scale
		}
	}

	out.RSUSymbol = strings.ToUpper(strings.TrimSpace(out.RSUSymbol))
	if !symbolPattern.MatchString(out.RSUSymbol) {
		out.RSUSymbol = ""
	}
	out.RSUCurrency = normalizeCurrency(out.RSUCurrency, "USD")
	out.RSUVestingYears = ClampInt(out.RSUVestingYears, 1, 10)

	return out
}

func normalizeCurrency(code, fallback string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !currencyPattern.MatchString(code) {
		return fallback
	}
	return code
}

func (in *Inputs) allocations() []*float64 {
	return []*float64{
		&in.StocksAllocation, &in.BondsAllocation, &in.CashAllocation,
		&in.RealEstateAllocation, &in.CryptoAllocation,
	}
}

// Allocations returns the five portfolio weights in a fixed order:
// stocks, bonds, cash, real estate, crypto.
func (in Inputs) Allocations() []float64 {
	return []float64{
		in.StocksAllocation, in.BondsAllocation, in.CashAllocation,
		in.RealEstateAllocation, in.CryptoAllocation,
	}
}

// IsCouple reports whether the plan covers two earners.
func (in Inputs) IsCouple() bool {
	return in.PlanningType == PlanningCouple
}

// HouseholdSalary is the gross monthly salary the plan is measured against.
func (in Inputs) HouseholdSalary() float64 {
	if in.IsCouple() {
		if total := in.Partner1Salary + in.Partner2Salary; total > 0 {
			return total
		}
	}
	return in.CurrentMonthlySalary
}

// Earners returns per-earner monthly salaries. There is always at least one
// entry so per-earner tax and training-fund math has something to work on.
func (in Inputs) Earners() []float64 {
	if in.IsCouple() && in.Partner1Salary+in.Partner2Salary > 0 {
		var out []float64
		for _, s := range []float64{in.Partner1Salary, in.Partner2Salary} {
			if s > 0 {
				out = append(out, s)
			}
		}
		return out
	}
	return []float64{in.CurrentMonthlySalary}
}

// YearsToRetirement is never negative.
func (in Inputs) YearsToRetirement() int {
	return max(0, in.RetirementAge-in.CurrentAge)
}

// RetirementYears is the length of the drawdown phase.
func (in Inputs) RetirementYears() int {
	return max(0, in.LifeExpectancy-in.RetirementAge)
}

// HasRSU reports whether any RSU math applies.
func (in Inputs) HasRSU() bool {
	return in.RSUUnits > 0 && (in.RSUSymbol != "" || in.RSUPrice > 0)
}

// Validate reports problems the user has to fix. It expects normalised inputs.
func (in Inputs) Validate() error {
	errs := ValidationErrors{}
	if in.IsCouple() && in.Partner1Salary+in.Partner2Salary == 0 && in.CurrentMonthlySalary == 0 {
		errs["partner1Salary"] = "enter at least one partner salary"
	}
	if in.RSUUnits > 0 && in.RSUSymbol == "" && in.RSUPrice == 0 {
		errs["rsuSymbol"] = "enter a stock symbol or a price per unit"
	}
	if s := sum(in.Allocations()); s > 0 && s < 1 {
		errs["stocksAllocation"] = "allocations must add up to at least 1%"
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func sum(vs []float64) float64 {
	total := 0.0
	for _, v := range vs {
		total += v
	}
	return total
}
