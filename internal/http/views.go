package http

import (
	"math"

	"retireplan/internal/calc"
	"retireplan/internal/core"
	"retireplan/internal/services"
)

type stepLink struct {
	Name    string
	Title   string
	Number  int
	Current bool
	Done    bool
}

type fieldView struct {
	Name    string
	Label   string
	Kind    core.FieldKind
	Value   string
	Error   string
	Choices []string
}

type wizardView struct {
	Steps     []stepLink
	Step      core.WizardStep
	Name      string
	Title     string
	Fields    []fieldView
	Errors    core.ValidationErrors
	Other     []string // errors not tied to a shown field
	First     bool
	Last      bool
	Completed bool
	Summary   []core.StepSummary
}

// newWizardView renders step for st. submitted, when set, overrides the
// stored values so a rejected form comes back as the user typed it.
func newWizardView(st core.WizardState, step core.WizardStep, submitted map[string]string, errs core.ValidationErrors) wizardView {
	v := wizardView{
		Step:      step,
		Name:      step.String(),
		Title:     step.Title(),
		Errors:    errs,
		First:     step == core.StepPersonal,
		Last:      step == core.StepReview,
		Completed: st.Completed,
	}
	for _, s := range core.Steps {
		v.Steps = append(v.Steps, stepLink{
			Name:    s.String(),
			Title:   s.Title(),
			Number:  int(s) + 1,
			Current: s == step,
			Done:    s < st.Step || st.Completed,
		})
	}

	shown := map[string]bool{}
	for _, f := range core.FieldsFor(step, st.Inputs) {
		fv := fieldView{
			Name:    f.Name,
			Label:   f.Label,
			Kind:    f.Kind,
			Value:   core.FormValue(f, st.Inputs),
			Error:   errs[f.Name],
			Choices: f.Choices,
		}
		if raw, ok := submitted[f.Name]; ok {
			fv.Value = raw
		}
		shown[f.Name] = true
		v.Fields = append(v.Fields, fv)
	}
	for name, msg := range errs {
		if !shown[name] {
			v.Other = append(v.Other, msg)
		}
	}
	if step == core.StepReview {
		v.Summary = core.Summarize(st.Inputs)
	}
	return v
}

type pageView struct {
	Wizard    wizardView
	SessionID string
	Completed bool
}

type timelineRow struct {
	calc.TimelineRow
	Width int
}

type resultsView struct {
	Results   calc.Results
	Currency  string
	Timeline  []timelineRow
	Best      calc.StrategyResult
	HasBest   bool
	Completed bool
}

func newResultsView(st core.WizardState, res calc.Results) resultsView {
	v := resultsView{
		Results:   res,
		Currency:  res.Inputs.Currency,
		Completed: st.Completed,
	}
	v.Best, v.HasBest = res.BestStrategy()

	rows := res.Timeline()
	peak := 0.0
	for _, row := range rows {
		peak = math.Max(peak, row.Total)
	}
	for _, row := range rows {
		v.Timeline = append(v.Timeline, timelineRow{
			TimelineRow: row,
			Width:       int(math.Round(core.SafeDiv(row.Total, peak) * 100)),
		})
	}
	return v
}

type scenariosView struct {
	Scenarios []core.Scenario
	Name      string
	Error     string
}

type compareView struct {
	Rows []services.ScenarioResult
}

type reportView struct {
	Report  core.Report
	Pending bool
}

func newReportView(r core.Report) reportView {
	return reportView{Report: r, Pending: !r.Terminal()}
}
