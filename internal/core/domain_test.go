package core

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestParseStep(t *testing.T) {
	cases := []struct {
		in   string
		want WizardStep
		ok   bool
	}{
		{"0", StepPersonal, true},
		{"4", StepReview, true},
		{"salary", StepSalary, true},
		{" Investments ", StepInvestments, true},
		{"5", 0, false},
		{"-1", 0, false},
		{"summary", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseStep(tc.in)
		if !tc.ok {
			require.ErrorIs(t, err, ErrInvalidStep, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestWizardStepNavigation(t *testing.T) {
	assert.Equal(t, StepSalary, StepPersonal.Next())
	assert.Equal(t, StepReview, StepReview.Next())
	assert.Equal(t, StepPersonal, StepPersonal.Prev())
	assert.Equal(t, "review", StepReview.String())
	assert.Equal(t, "step(9)", WizardStep(9).String())
}

func TestWizardState_Apply(t *testing.T) {
	w := NewWizardState("s1", testNow)

	w, errs := w.Apply(StepPersonal, map[string]string{
		"planningType":   "couple",
		"currentAge":     "35",
		"retirementAge":  "65",
		"lifeExpectancy": "90",
	}, testNow)
	require.Empty(t, errs)
	assert.Equal(t, StepSalary, w.Step)
	assert.Equal(t, PlanningCouple, w.Inputs.PlanningType)
	assert.Equal(t, 35, w.Inputs.CurrentAge)

	w, errs = w.Apply(StepSalary, map[string]string{
		"partner1Salary":          "20,000",
		"partner2Salary":          "₪12,000",
		"pensionContributionRate": "250",
		"salaryGrowthRate":        "not a number",
	}, testNow.Add(time.Minute))
	require.Empty(t, errs)
	assert.Equal(t, StepSavings, w.Step)
	assert.Equal(t, 20000.0, w.Inputs.Partner1Salary)
	assert.Equal(t, 12000.0, w.Inputs.Partner2Salary)
	assert.Equal(t, 100.0, w.Inputs.PensionContributionRate, "percentages clamp to 100")
	assert.Equal(t, 0.0, w.Inputs.SalaryGrowthRate, "unparseable numbers become 0")
	assert.Equal(t, 10.0, w.Inputs.TrainingFundContributionRate, "absent fields keep their value")
	assert.Equal(t, testNow.Add(time.Minute), w.UpdatedAt)
	assert.False(t, w.Completed)
}

func TestWizardState_ApplyRejectsRetirementBeforeCurrentAge(t *testing.T) {
	w := NewWizardState("s1", testNow)
	got, errs := w.Apply(StepPersonal, map[string]string{
		"currentAge":    "50",
		"retirementAge": "40",
	}, testNow)
	require.Contains(t, errs, "retirementAge")
	assert.Equal(t, w, got, "state is unchanged on error")
}

func TestWizardState_ApplyCoupleWithoutSalaries(t *testing.T) {
	w := NewWizardState("s1", testNow)
	w.Inputs.PlanningType = PlanningCouple
	w.Step = StepSalary

	_, errs := w.Apply(StepSalary, map[string]string{
		"currentMonthlySalary": "0",
		"partner1Salary":       "0",
		"partner2Salary":       "",
	}, testNow)
	assert.Contains(t, errs, "partner1Salary")
}

func TestWizardState_ReviewCompletes(t *testing.T) {
	w := NewWizardState("s1", testNow)
	w.Step = StepReview

	w, errs := w.Apply(StepReview, map[string]string{"targetReplacementRate": "80"}, testNow)
	require.Empty(t, errs)
	assert.True(t, w.Completed)
	assert.Equal(t, StepReview, w.Step)
	assert.Equal(t, 80.0, w.Inputs.TargetReplacementRate)

	w = w.Back(testNow)
	assert.Equal(t, StepInvestments, w.Step)
}

func TestWizardState_ApplyInvalidStep(t *testing.T) {
	w := NewWizardState("s1", testNow)
	_, errs := w.Apply(WizardStep(7), nil, testNow)
	assert.Contains(t, errs, "step")
}

func TestValidationErrors(t *testing.T) {
	var err error = ValidationErrors{"b": "second", "a": "first"}
	assert.Equal(t, "invalid inputs: a: first; b: second", err.Error())

	wrapped := errors.Join(errors.New("context"), err)
	v, ok := AsValidationErrors(wrapped)
	require.True(t, ok)
	assert.Len(t, v, 2)

	_, ok = AsValidationErrors(errors.New("plain"))
	assert.False(t, ok)
}

func TestScenarioValidate(t *testing.T) {
	s := Scenario{SessionID: "s1", Name: "Early retirement"}
	require.NoError(t, s.Validate())

	s.Name = "   "
	require.ErrorIs(t, s.Validate(), ErrEmptyName)

	s.Name = strings.Repeat("x", MaxScenarioNameLength+1)
	require.ErrorIs(t, s.Validate(), ErrNameTooLong)

	s.Name = "ok"
	s.SessionID = ""
	require.ErrorIs(t, s.Validate(), ErrEmptySession)
}

func TestMarketSnapshotValidate(t *testing.T) {
	ok := MarketSnapshot{Kind: SnapshotRate, Key: "USD", Value: 3.7, Currency: "ILS"}
	require.NoError(t, ok.Validate())

	bad := ok
	bad.Value = 0
	require.ErrorIs(t, bad.Validate(), ErrInvalidSnapshot)

	bad = ok
	bad.Kind = "other"
	require.ErrorIs(t, bad.Validate(), ErrInvalidSnapshot)
}

func TestReportTerminal(t *testing.T) {
	assert.False(t, Report{Status: ReportPending}.Terminal())
	assert.False(t, Report{Status: ReportProcessing}.Terminal())
	assert.True(t, Report{Status: ReportReady}.Terminal())
	assert.True(t, Report{Status: ReportFailed}.Terminal())
}
