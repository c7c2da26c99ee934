package core

// FieldKind drives both form parsing and how a template renders the input.
type FieldKind string

const (
	KindMoney   FieldKind = "money"
	KindPercent FieldKind = "percent"
	KindYears   FieldKind = "years"
	KindNumber  FieldKind = "number"
	KindText    FieldKind = "text"
	KindChoice  FieldKind = "choice"
)

// Field describes one input of the wizard.
type Field struct {
	Name    string
	Label   string
	Kind    FieldKind
	Step    WizardStep
	Choices []string
	Couple  bool // only shown for couple plans
	Single  bool // only shown for single plans

	number  func(*Inputs) *float64
	integer func(*Inputs) *int
	text    func(*Inputs) *string
}

var fieldList = []Field{
	{Name: "planningType", Label: "Planning for", Kind: KindChoice, Step: StepPersonal, Choices: []string{PlanningSingle, PlanningCouple},
		text: func(in *Inputs) *string { return &in.PlanningType }},
	{Name: "currentAge", Label: "Current age", Kind: KindYears, Step: StepPersonal,
		integer: func(in *Inputs) *int { return &in.CurrentAge }},
	{Name: "retirementAge", Label: "Retirement age", Kind: KindYears, Step: StepPersonal,
		integer: func(in *Inputs) *int { return &in.RetirementAge }},
	{Name: "lifeExpectancy", Label: "Life expectancy", Kind: KindYears, Step: StepPersonal,
		integer: func(in *Inputs) *int { return &in.LifeExpectancy }},
	{Name: "currency", Label: "Display currency", Kind: KindChoice, Step: StepPersonal, Choices: []string{"ILS", "USD", "EUR", "GBP"},
		text: func(in *Inputs) *string { return &in.Currency }},

	{Name: "currentMonthlySalary", Label: "Gross monthly salary", Kind: KindMoney, Step: StepSalary, Single: true,
		number: func(in *Inputs) *float64 { return &in.CurrentMonthlySalary }},
	{Name: "partner1Salary", Label: "Partner 1 gross monthly salary", Kind: KindMoney, Step: StepSalary, Couple: true,
		number: func(in *Inputs) *float64 { return &in.Partner1Salary }},
	{Name: "partner2Salary", Label: "Partner 2 gross monthly salary", Kind: KindMoney, Step: StepSalary, Couple: true,
		number: func(in *Inputs) *float64 { return &in.Partner2Salary }},
	{Name: "salaryGrowthRate", Label: "Annual salary growth", Kind: KindPercent, Step: StepSalary,
		number: func(in *Inputs) *float64 { return &in.SalaryGrowthRate }},
	{Name: "creditPoints", Label: "Tax credit points", Kind: KindNumber, Step: StepSalary,
		number: func(in *Inputs) *float64 { return &in.CreditPoints }},
	{Name: "pensionContributionRate", Label: "Total pension contribution", Kind: KindPercent, Step: StepSalary,
		number: func(in *Inputs) *float64 { return &in.PensionContributionRate }},
	{Name: "employeePensionRate", Label: "Employee pension share", Kind: KindPercent, Step: StepSalary,
		number: func(in *Inputs) *float64 { return &in.EmployeePensionRate }},
	{Name: "trainingFundContributionRate", Label: "Training fund contribution", Kind: KindPercent, Step: StepSalary,
		number: func(in *Inputs) *float64 { return &in.TrainingFundContributionRate }},
	{Name: "employeeTrainingFundRate", Label: "Employee training fund share", Kind: KindPercent, Step: StepSalary,
		number: func(in *Inputs) *float64 { return &in.EmployeeTrainingFundRate }},
	{Name: "trainingFundSalaryCap", Label: "Training fund salary cap", Kind: KindMoney, Step: StepSalary,
		number: func(in *Inputs) *float64 { return &in.TrainingFundSalaryCap }},

	{Name: "currentSavings", Label: "Pension balance", Kind: KindMoney, Step: StepSavings,
		number: func(in *Inputs) *float64 { return &in.CurrentSavings }},
	{Name: "trainingFundBalance", Label: "Training fund balance", Kind: KindMoney, Step: StepSavings,
		number: func(in *Inputs) *float64 { return &in.TrainingFundBalance }},
	{Name: "emergencyFund", Label: "Emergency fund", Kind: KindMoney, Step: StepSavings,
		number: func(in *Inputs) *float64 { return &in.EmergencyFund }},
	{Name: "monthlyExpenses", Label: "Monthly expenses", Kind: KindMoney, Step: StepSavings,
		number: func(in *Inputs) *float64 { return &in.MonthlyExpenses }},
	{Name: "monthlyDebtPayments", Label: "Monthly debt payments", Kind: KindMoney, Step: StepSavings,
		number: func(in *Inputs) *float64 { return &in.MonthlyDebtPayments }},
	{Name: "expectedReturn", Label: "Expected annual return", Kind: KindPercent, Step: StepSavings,
		number: func(in *Inputs) *float64 { return &in.ExpectedReturn }},
	{Name: "accumulationFees", Label: "Management fee on balance", Kind: KindPercent, Step: StepSavings,
		number: func(in *Inputs) *float64 { return &in.AccumulationFees }},
	{Name: "depositFees", Label: "Fee on deposits", Kind: KindPercent, Step: StepSavings,
		number: func(in *Inputs) *float64 { return &in.DepositFees }},
	{Name: "inflationRate", Label: "Inflation", Kind: KindPercent, Step: StepSavings,
		number: func(in *Inputs) *float64 { return &in.InflationRate }},
	{Name: "annuityFactor", Label: "Annuity factor", Kind: KindNumber, Step: StepSavings,
		number: func(in *Inputs) *float64 { return &in.AnnuityFactor }},

	{Name: "currentInvestments", Label: "Investment portfolio", Kind: KindMoney, Step: StepInvestments,
		number: func(in *Inputs) *float64 { return &in.CurrentInvestments }},
	{Name: "monthlyInvestment", Label: "Monthly investment", Kind: KindMoney, Step: StepInvestments,
		number: func(in *Inputs) *float64 { return &in.MonthlyInvestment }},
	{Name: "investmentFees", Label: "Portfolio fees", Kind: KindPercent, Step: StepInvestments,
		number: func(in *Inputs) *float64 { return &in.InvestmentFees }},
	{Name: "stocksAllocation", Label: "Stocks", Kind: KindPercent, Step: StepInvestments,
		number: func(in *Inputs) *float64 { return &in.StocksAllocation }},
	{Name: "bondsAllocation", Label: "Bonds", Kind: KindPercent, Step: StepInvestments,
		number: func(in *Inputs) *float64 { return &in.BondsAllocation }},
	{Name: "cashAllocation", Label: "Cash", Kind: KindPercent, Step: StepInvestments,
		number: func(in *Inputs) *float64 { return &in.CashAllocation }},
	{Name: "realEstateAllocation", Label: "Real estate", Kind: KindPercent, Step: StepInvestments,
		number: func(in *Inputs) *float64 { return &in.RealEstateAllocation }},
	{Name: "cryptoAllocation", Label: "Crypto", Kind: KindPercent, Step: StepInvestments,
		number: func(in *Inputs) *float64 { return &in.CryptoAllocation }},
	{Name: "rsuUnits", Label: "Unvested RSU units", Kind: KindNumber, Step: StepInvestments,
		number: func(in *Inputs) *float64 { return &in.RSUUnits }},
	{Name: "rsuSymbol", Label: "RSU stock symbol", Kind: KindText, Step: StepInvestments,
		text: func(in *Inputs) *string { return &in.RSUSymbol }},
	{Name: "rsuPrice", Label: "RSU price override (0 = live)", Kind: KindNumber, Step: StepInvestments,
		number: func(in *Inputs) *float64 { return &in.RSUPrice }},
	{Name: "rsuCurrency", Label: "RSU currency", Kind: KindChoice, Step: StepInvestments, Choices: []string{"USD", "EUR", "GBP", "ILS"},
		text: func(in *Inputs) *string { return &in.RSUCurrency }},
	{Name: "rsuVestingYears", Label: "RSU vesting years", Kind: KindYears, Step: StepInvestments,
		integer: func(in *Inputs) *int { return &in.RSUVestingYears }},
	{Name: "rsuTaxRate", Label: "RSU tax rate", Kind: KindPercent, Step: StepInvestments,
		number: func(in *Inputs) *float64 { return &in.RSUTaxRate }},

	{Name: "targetReplacementRate", Label: "Target income replacement", Kind: KindPercent, Step: StepReview,
		number: func(in *Inputs) *float64 { return &in.TargetReplacementRate }},
	{Name: "withdrawalRate", Label: "Withdrawal rate", Kind: KindPercent, Step: StepReview,
		number: func(in *Inputs) *float64 { return &in.WithdrawalRate }},
	{Name: "retirementReturn", Label: "Return during retirement", Kind: KindPercent, Step: StepReview,
		number: func(in *Inputs) *float64 { return &in.RetirementReturn }},
}

var inputFields = func() map[string]Field {
	m := make(map[string]Field, len(fieldList))
	for _, f := range fieldList {
		m[f.Name] = f
	}
	return m
}()

// Fields returns the metadata of every input in wizard order.
func Fields() []Field {
	return append([]Field(nil), fieldList...)
}

// StepFields returns the input names owned by a step.
func StepFields(step WizardStep) []string {
	var names []string
	for _, f := range fieldList {
		if f.Step == step {
			names = append(names, f.Name)
		}
	}
	return names
}

// FieldsFor returns the fields of a step that apply to the plan type.
func FieldsFor(step WizardStep, in Inputs) []Field {
	var out []Field
	for _, f := range fieldList {
		if f.Step != step {
			continue
		}
		if (f.Couple && !in.IsCouple()) || (f.Single && in.IsCouple()) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// LookupField returns the metadata for a JSON field name.
func LookupField(name string) (Field, bool) {
	f, ok := inputFields[name]
	return f, ok
}

// Value returns the field's current value as a float. Text fields return 0.
func (f Field) Value(in Inputs) float64 {
	switch {
	case f.number != nil:
		return *f.number(&in)
	case f.integer != nil:
		return float64(*f.integer(&in))
	default:
		return 0
	}
}

// Text returns the field's current value as a string.
func (f Field) Text(in Inputs) string {
	if f.text != nil {
		return *f.text(&in)
	}
	return ""
}

// IsText reports whether the field holds a string.
func (f Field) IsText() bool {
	return f.text != nil
}
