package core

import "strconv"

// SummaryItem is one label/value line of the review step and the PDF.
type SummaryItem struct {
	Name  string
	Label string
	Value string
}

// StepSummary groups the formatted inputs of one wizard step.
type StepSummary struct {
	Step  WizardStep
	Title string
	Items []SummaryItem
}

// Summarize formats the inputs for display, grouped by the step that owns them.
func Summarize(in Inputs) []StepSummary {
	out := make([]StepSummary, 0, len(Steps))
	for _, step := range Steps {
		s := StepSummary{Step: step, Title: step.Title()}
		for _, f := range FieldsFor(step, in) {
			s.Items = append(s.Items, SummaryItem{
				Name:  f.Name,
				Label: f.Label,
				Value: FormatField(f, in),
			})
		}
		out = append(out, s)
	}
	return out
}

// FormatField renders a field value according to its kind.
func FormatField(f Field, in Inputs) string {
	if f.IsText() {
		v := f.Text(in)
		if v == "" {
			return "-"
		}
		return v
	}
	v := f.Value(in)
	switch f.Kind {
	case KindMoney:
		return FormatMoney(v, in.Currency)
	case KindPercent:
		return strconv.FormatFloat(v, 'f', -1, 64) + "%"
	case KindYears:
		return strconv.Itoa(int(v))
	default:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
}

// FormValue is the raw string put back into an input element.
func FormValue(f Field, in Inputs) string {
	if f.IsText() {
		return f.Text(in)
	}
	return strconv.FormatFloat(f.Value(in), 'f', -1, 64)
}
