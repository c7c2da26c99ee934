package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

type (
	WizardStep int

	ReportStatus string

	SnapshotKind string

	// WizardState is what a browser session resumes from.
	WizardState struct {
		SessionID string     `json:"sessionId"`
		Step      WizardStep `json:"step"`
		Inputs    Inputs     `json:"inputs"`
		Completed bool       `json:"completed"`
		CreatedAt time.Time  `json:"createdAt"`
		UpdatedAt time.Time  `json:"updatedAt"`
	}

	// Scenario is a named copy of a session's inputs.
	Scenario struct {
		ID        string    `json:"id"`
		SessionID string    `json:"sessionId"`
		Name      string    `json:"name"`
		Inputs    Inputs    `json:"inputs"`
		CreatedAt time.Time `json:"createdAt"`
	}

	Report struct {
		ID        string       `json:"id"`
		SessionID string       `json:"sessionId"`
		Status    ReportStatus `json:"status"`
		Attempts  int          `json:"attempts"`
		Error     string       `json:"error,omitempty"`
		SheetsRef string       `json:"sheetsRef,omitempty"`
		PDF       []byte       `json:"-"`
		CreatedAt time.Time    `json:"createdAt"`
		UpdatedAt time.Time    `json:"updatedAt"`
	}

	// MarketSnapshot is the last live value seen for a rate or a quote.
	MarketSnapshot struct {
		Kind      SnapshotKind `json:"kind"`
		Key       string       `json:"key"`
		Value     float64      `json:"value"`
		Currency  string       `json:"currency"`
		FetchedAt time.Time    `json:"fetchedAt"`
	}

	// ValidationErrors maps an input field name to a user-facing message.
	ValidationErrors map[string]string
)

const (
	StepPersonal WizardStep = iota
	StepSalary
	StepSavings
	StepInvestments
	StepReview
)

const (
	ReportPending    ReportStatus = "pending"
	ReportProcessing ReportStatus = "processing"
	ReportReady      ReportStatus = "ready"
	ReportFailed     ReportStatus = "failed"
)

const (
	SnapshotRate  SnapshotKind = "rate"
	SnapshotQuote SnapshotKind = "quote"
)

const MaxScenarioNameLength = 80

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidStep     = errors.New("invalid wizard step")
	ErrEmptyName       = errors.New("empty scenario name")
	ErrNameTooLong     = errors.New("scenario name too long")
	ErrEmptySession    = errors.New("empty session id")
	ErrReportNotReady  = errors.New("report not ready")
	ErrReportClaimed   = errors.New("report is not pending")
	ErrInvalidSnapshot = errors.New("invalid market snapshot")
)

// Steps lists the wizard steps in order.
var Steps = []WizardStep{StepPersonal, StepSalary, StepSavings, StepInvestments, StepReview}

var stepNames = map[WizardStep]string{
	StepPersonal:    "personal",
	StepSalary:      "salary",
	StepSavings:     "savings",
	StepInvestments: "investments",
	StepReview:      "review",
}

var stepTitles = map[WizardStep]string{
	StepPersonal:    "Personal details",
	StepSalary:      "Salary & contributions",
	StepSavings:     "Savings & assumptions",
	StepInvestments: "Investments & RSUs",
	StepReview:      "Review & goals",
}

// Valid reports whether s is one of the five steps.
func (s WizardStep) Valid() bool {
	return s >= StepPersonal && s <= StepReview
}

func (s WizardStep) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// Title is the heading shown above the step form.
func (s WizardStep) Title() string {
	return stepTitles[s]
}

// Next returns the following step, staying on review.
func (s WizardStep) Next() WizardStep {
	return min(s+1, StepReview)
}

// Prev returns the previous step, staying on personal.
func (s WizardStep) Prev() WizardStep {
	return max(s-1, StepPersonal)
}

// ParseStep accepts either the step number or its name.
func ParseStep(s string) (WizardStep, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for step, name := range stepNames {
		if s == name {
			return step, nil
		}
	}
	n := ParseInt(s, -1)
	step := WizardStep(n)
	if !step.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidStep, s)
	}
	return step, nil
}

func (v ValidationErrors) Error() string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+v[k])
	}
	return "invalid inputs: " + strings.Join(parts, "; ")
}

// AsValidationErrors extracts field errors from err, if any.
func AsValidationErrors(err error) (ValidationErrors, bool) {
	var v ValidationErrors
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}

// NewWizardState starts a session on the first step with default inputs.
func NewWizardState(sessionID string, now time.Time) WizardState {
	return WizardState{
		SessionID: sessionID,
		Step:      StepPersonal,
		Inputs:    DefaultInputs(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Apply writes one step's form values into the inputs. Fields that are absent
// from the form keep their value; present but unparseable numbers become 0.
// On success the state advances to the next step and submitting the review
// step marks the plan completed.
func (w WizardState) Apply(step WizardStep, form map[string]string, now time.Time) (WizardState, ValidationErrors) {
	if !step.Valid() {
		return w, ValidationErrors{"step": ErrInvalidStep.Error()}
	}

	in := w.Inputs
	errs := ValidationErrors{}
	for _, name := range StepFields(step) {
		raw, ok := form[name]
		if !ok {
			continue
		}
		f := inputFields[name]
		switch {
		case f.text != nil:
			*f.text(&in) = strings.TrimSpace(raw)
		case f.integer != nil:
			*f.integer(&in) = ParseInt(raw, 0)
		case f.number != nil:
			*f.number(&in) = ParseNumber(raw, 0)
		}
	}

	if step == StepPersonal && in.RetirementAge < in.CurrentAge {
		errs["retirementAge"] = "retirement age must not be below current age"
	}

	in = in.Normalize()
	if err := in.Validate(); err != nil {
		if v, ok := AsValidationErrors(err); ok {
			owned := map[string]bool{}
			for _, name := range StepFields(step) {
				owned[name] = true
			}
			for field, msg := range v {
				if owned[field] || step == StepReview {
					errs[field] = msg
				}
			}
		}
	}
	if len(errs) > 0 {
		return w, errs
	}

	w.Inputs = in
	w.UpdatedAt = now
	if step == StepReview {
		w.Completed = true
	}
	w.Step = step.Next()
	return w, nil
}

// Back moves one step back without touching inputs.
func (w WizardState) Back(now time.Time) WizardState {
	w.Step = w.Step.Prev()
	w.UpdatedAt = now
	return w
}

// Validate checks a scenario before it is stored.
func (s Scenario) Validate() error {
	name := strings.TrimSpace(s.Name)
	if name == "" {
		return ErrEmptyName
	}
	if utf8.RuneCountInString(name) > MaxScenarioNameLength {
		return ErrNameTooLong
	}
	if s.SessionID == "" {
		return ErrEmptySession
	}
	return nil
}

// Terminal reports whether the report will not change any more.
func (r Report) Terminal() bool {
	return r.Status == ReportReady || r.Status == ReportFailed
}

func (m MarketSnapshot) Validate() error {
	if m.Key == "" || (m.Kind != SnapshotRate && m.Kind != SnapshotQuote) {
		return ErrInvalidSnapshot
	}
	if m.Value <= 0 || Finite(m.Value) != m.Value {
		return ErrInvalidSnapshot
	}
	return nil
}
