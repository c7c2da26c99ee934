package core

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_Defaults(t *testing.T) {
	in := DefaultInputs()
	assert.Equal(t, in, in.Normalize(), "defaults are already normal")
	assert.NoError(t, in.Validate())
	assert.Equal(t, 37, in.YearsToRetirement())
	assert.Equal(t, 20, in.RetirementYears())
}

func TestNormalize_Clamps(t *testing.T) {
	in := DefaultInputs()
	in.PlanningType = "Household"
	in.CurrentAge = 10
	in.RetirementAge = 5
	in.LifeExpectancy = 500
	in.CurrentMonthlySalary = -100
	in.ExpectedReturn = 150
	in.AccumulationFees = -1
	in.InflationRate = math.NaN()
	in.AnnuityFactor = 0
	in.TrainingFundSalaryCap = math.Inf(1)
	in.RSUSymbol = " msft "
	in.RSUCurrency = "dollars"
	in.RSUVestingYears = 0
	in.CreditPoints = 99
	in.Currency = "usd"

	out := in.Normalize()
	assert.Equal(t, PlanningSingle, out.PlanningType)
	assert.Equal(t, 18, out.CurrentAge)
	assert.Equal(t, 18, out.RetirementAge)
	assert.Equal(t, 120, out.LifeExpectancy)
	assert.Equal(t, 0.0, out.CurrentMonthlySalary)
	assert.Equal(t, 100.0, out.ExpectedReturn)
	assert.Equal(t, 0.0, out.AccumulationFees)
	assert.Equal(t, 0.0, out.InflationRate)
	assert.Equal(t, float64(DefaultAnnuityFactor), out.AnnuityFactor)
	assert.Equal(t, float64(DefaultTrainingFundSalaryCap), out.TrainingFundSalaryCap)
	assert.Equal(t, "MSFT", out.RSUSymbol)
	assert.Equal(t, "USD", out.RSUCurrency)
	assert.Equal(t, 1, out.RSUVestingYears)
	assert.Equal(t, 20.0, out.CreditPoints)
	assert.Equal(t, "USD", out.Currency)
}

func TestNormalize_ScalesAllocations(t *testing.T) {
	in := DefaultInputs()
	in.StocksAllocation = 100
	in.BondsAllocation = 50
	in.CashAllocation = 50
	in.RealEstateAllocation = 0
	in.CryptoAllocation = 0

	out := in.Normalize()
	assert.InDelta(t, 50, out.StocksAllocation, 1e-9)
	assert.InDelta(t, 25, out.BondsAllocation, 1e-9)
	assert.InDelta(t, 25, out.CashAllocation, 1e-9)
	assert.InDelta(t, 100, sum(out.Allocations()), 1e-9)
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []Inputs{
		DefaultInputs(),
		{},
		{PlanningType: "couple", CurrentAge: 70, RetirementAge: 60, StocksAllocation: 90, BondsAllocation: 90, CryptoAllocation: 33.3},
		{CurrentAge: 100, RetirementAge: 100, LifeExpectancy: 0, AnnuityFactor: -5, RSUSymbol: "bad symbol!"},
	}
	for i, in := range inputs {
		once := in.Normalize()
		assert.Equal(t, once, once.Normalize(), "case %d", i)
	}
}

func TestHouseholdSalaryAndEarners(t *testing.T) {
	in := DefaultInputs()
	assert.Equal(t, 15000.0, in.HouseholdSalary())
	assert.Equal(t, []float64{15000}, in.Earners())

	in.PlanningType = PlanningCouple
	in.Partner1Salary = 20000
	in.Partner2Salary = 12000
	assert.Equal(t, 32000.0, in.HouseholdSalary())
	assert.Equal(t, []float64{20000, 12000}, in.Earners())

	in.Partner2Salary = 0
	assert.Equal(t, []float64{20000}, in.Earners())

	in.Partner1Salary = 0
	assert.Equal(t, 15000.0, in.HouseholdSalary(), "couple without partner salaries falls back")
	assert.Equal(t, []float64{15000}, in.Earners())
}

func TestHasRSU(t *testing.T) {
	in := DefaultInputs()
	assert.False(t, in.HasRSU())
	in.RSUUnits = 100
	assert.False(t, in.HasRSU())
	in.RSUSymbol = "NVDA"
	assert.True(t, in.HasRSU())

	require.NoError(t, in.Validate())
	in.RSUSymbol = ""
	err := in.Validate()
	v, ok := AsValidationErrors(err)
	require.True(t, ok)
	assert.Contains(t, v, "rsuSymbol")
}

func TestInputsJSONNames(t *testing.T) {
	raw := []byte(`{"currentAge":40,"currentMonthlySalary":22000,"partner1Salary":1,"rsuUnits":12,"trainingFundContributionRate":7.5}`)
	var in Inputs
	require.NoError(t, json.Unmarshal(raw, &in))
	assert.Equal(t, 40, in.CurrentAge)
	assert.Equal(t, 22000.0, in.CurrentMonthlySalary)
	assert.Equal(t, 12.0, in.RSUUnits)
	assert.Equal(t, 7.5, in.TrainingFundContributionRate)
}

func TestSummarize(t *testing.T) {
	in := DefaultInputs()
	summary := Summarize(in)
	require.Len(t, summary, len(Steps))

	var salary StepSummary
	for _, s := range summary {
		if s.Step == StepSalary {
			salary = s
		}
	}
	require.NotEmpty(t, salary.Items)
	assert.Equal(t, "currentMonthlySalary", salary.Items[0].Name)
	assert.Equal(t, "₪15,000", salary.Items[0].Value)
	for _, item := range salary.Items {
		assert.NotEqual(t, "partner1Salary", item.Name, "partner fields hidden for single plans")
	}
}

func TestStepFieldsCoverEveryInput(t *testing.T) {
	seen := map[string]bool{}
	for _, step := range Steps {
		for _, name := range StepFields(step) {
			assert.False(t, seen[name], "field %s owned twice", name)
			seen[name] = true
			_, ok := LookupField(name)
			assert.True(t, ok)
		}
	}
	assert.Len(t, seen, len(Fields()))
}
