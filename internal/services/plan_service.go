package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"retireplan/internal/calc"
	"retireplan/internal/core"
	"retireplan/internal/log"
	"retireplan/internal/metrics"
	"retireplan/internal/sheets"
	"retireplan/internal/tables"
)

// MarketResolver looks up the RSU price and exchange rate for a calculation.
// It never fails; unavailable data falls back to defaults.
type MarketResolver interface {
	MarketInputs(ctx context.Context, in core.Inputs) calc.MarketInputs
}

// PlanDeps are the collaborators of a PlanService. Market may be nil, in
// which case RSUs are valued from the user's price override only.
type PlanDeps struct {
	States    sheets.StateStore
	Scenarios sheets.ScenarioStore
	Market    MarketResolver
	Tables    *tables.Tables
	Logger    *log.Logger
	Metrics   *metrics.Metrics
}

// PlanService runs the wizard and the calculations behind it. It keeps no
// per-session state of its own.
type PlanService struct {
	states    sheets.StateStore
	scenarios sheets.ScenarioStore
	market    MarketResolver
	tables    *tables.Tables
	logger    *log.Logger
	calcLog   *log.StructuredLogger
	metrics   *metrics.Metrics
	now       func() time.Time
	newID     func() string
}

// ScenarioResult pairs a stored scenario with its calculated results.
type ScenarioResult struct {
	Scenario core.Scenario `json:"scenario"`
	Results  calc.Results  `json:"results"`
}

func NewPlanService(d PlanDeps) *PlanService {
	logger := d.Logger
	if logger == nil {
		logger = log.Discard()
	}
	t := d.Tables
	if t == nil {
		t = tables.MustLoad()
	}
	return &PlanService{
		states:    d.States,
		scenarios: d.Scenarios,
		market:    d.Market,
		tables:    t,
		logger:    logger.WithComponent(log.ComponentWizard),
		calcLog:   log.NewStructuredLogger(logger.WithComponent(log.ComponentCalc)),
		metrics:   d.Metrics,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Tables returns the lookup tables calculations run against.
func (s *PlanService) Tables() *tables.Tables {
	return s.tables
}

// State loads the session's wizard state, creating and storing a fresh one
// on first visit.
func (s *PlanService) State(ctx context.Context, sessionID string) (core.WizardState, error) {
	if sessionID == "" {
		return core.WizardState{}, core.ErrEmptySession
	}
	st, err := s.states.LoadState(ctx, sessionID)
	if err == nil {
		st.Inputs = st.Inputs.Normalize()
		return st, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return core.WizardState{}, fmt.Errorf("load state: %w", err)
	}

	st = core.NewWizardState(sessionID, s.now())
	if err := s.states.SaveState(ctx, st); err != nil {
		return core.WizardState{}, fmt.Errorf("save new state: %w", err)
	}
	s.logger.InfoContext(ctx, "Wizard session started", log.FieldSessionID, sessionID)
	return st, nil
}

// SubmitStep applies one step's form. Field problems come back as
// core.ValidationErrors together with the unchanged state.
func (s *PlanService) SubmitStep(ctx context.Context, sessionID string, step core.WizardStep, form map[string]string) (core.WizardState, error) {
	st, err := s.State(ctx, sessionID)
	if err != nil {
		return core.WizardState{}, err
	}

	next, verrs := st.Apply(step, form, s.now())
	if len(verrs) > 0 {
		s.logger.DebugContext(ctx, "Wizard step rejected",
			log.NewFields().WithSession(sessionID, int(step)).WithOperation(log.OpValidate).ToSlice()...)
		return st, verrs
	}
	if err := s.states.SaveState(ctx, next); err != nil {
		return st, fmt.Errorf("save state: %w", err)
	}
	return next, nil
}

func (s *PlanService) Back(ctx context.Context, sessionID string) (core.WizardState, error) {
	st, err := s.State(ctx, sessionID)
	if err != nil {
		return core.WizardState{}, err
	}
	st = st.Back(s.now())
	if err := s.states.SaveState(ctx, st); err != nil {
		return core.WizardState{}, fmt.Errorf("save state: %w", err)
	}
	return st, nil
}

// GoTo jumps to step without touching inputs.
func (s *PlanService) GoTo(ctx context.Context, sessionID string, step core.WizardStep) (core.WizardState, error) {
	if !step.Valid() {
		return core.WizardState{}, core.ErrInvalidStep
	}
	st, err := s.State(ctx, sessionID)
	if err != nil {
		return core.WizardState{}, err
	}
	if st.Step == step {
		return st, nil
	}
	st.Step = step
	st.UpdatedAt = s.now()
	if err := s.states.SaveState(ctx, st); err != nil {
		return core.WizardState{}, fmt.Errorf("save state: %w", err)
	}
	return st, nil
}

// Reset throws the session's inputs away and starts over with defaults.
func (s *PlanService) Reset(ctx context.Context, sessionID string) (core.WizardState, error) {
	if sessionID == "" {
		return core.WizardState{}, core.ErrEmptySession
	}
	if err := s.states.DeleteState(ctx, sessionID); err != nil {
		return core.WizardState{}, fmt.Errorf("delete state: %w", err)
	}
	s.logger.InfoContext(ctx, "Wizard session reset", log.FieldSessionID, sessionID)
	return s.State(ctx, sessionID)
}

// UpdateInputs replaces the session's inputs wholesale. Inputs are clamped,
// never rejected.
func (s *PlanService) UpdateInputs(ctx context.Context, sessionID string, in core.Inputs) (core.WizardState, error) {
	st, err := s.State(ctx, sessionID)
	if err != nil {
		return core.WizardState{}, err
	}
	st.Inputs = in.Normalize()
	st.UpdatedAt = s.now()
	if err := s.states.SaveState(ctx, st); err != nil {
		return core.WizardState{}, fmt.Errorf("save state: %w", err)
	}
	return st, nil
}

// Calculate runs every projection on in. Market data problems never fail a
// calculation; only a cancelled context does.
func (s *PlanService) Calculate(ctx context.Context, in core.Inputs) (calc.Results, error) {
	if err := ctx.Err(); err != nil {
		return calc.Results{}, err
	}
	start := time.Now()
	in = in.Normalize()

	m := calc.MarketInputs{
		RSUPrice:    in.RSUPrice,
		RSUCurrency: in.RSUCurrency,
		FXRate:      1,
		PriceSource: calc.SourceNone,
		RateSource:  calc.SourceNone,
	}
	if s.market != nil {
		m = s.market.MarketInputs(ctx, in)
	} else if in.HasRSU() {
		if in.RSUPrice > 0 {
			m.PriceSource = calc.SourceManual
		} else {
			m.RSUPrice, _ = s.tables.FallbackQuote(in.RSUSymbol)
			m.PriceSource = calc.SourceFallback
		}
		if in.RSUCurrency != in.Currency {
			from, _ := s.tables.FallbackRate(in.RSUCurrency)
			to, _ := s.tables.FallbackRate(in.Currency)
			m.FXRate = core.SafeDiv(from, to)
			m.RateSource = calc.SourceFallback
		}
	}

	res := calc.Calculate(in, m, s.tables)
	s.metrics.CalculationDone()
	s.calcLog.LogCalculation(ctx, res.Score.Total, m.PriceSource, time.Since(start).Milliseconds())
	return res, nil
}

// Results calculates the session's current inputs.
func (s *PlanService) Results(ctx context.Context, sessionID string) (core.WizardState, calc.Results, error) {
	st, err := s.State(ctx, sessionID)
	if err != nil {
		return core.WizardState{}, calc.Results{}, err
	}
	res, err := s.Calculate(ctx, st.Inputs)
	return st, res, err
}

// SaveScenario stores a named copy of the session's current inputs.
func (s *PlanService) SaveScenario(ctx context.Context, sessionID, name string) (core.Scenario, error) {
	st, err := s.State(ctx, sessionID)
	if err != nil {
		return core.Scenario{}, err
	}
	sc := core.Scenario{
		SessionID: sessionID,
		Name:      strings.TrimSpace(name),
		Inputs:    st.Inputs,
	}
	if err := sc.Validate(); err != nil {
		return core.Scenario{}, err
	}
	sc.ID = s.newID()
	sc.CreatedAt = s.now()
	if err := s.scenarios.SaveScenario(ctx, sc); err != nil {
		return core.Scenario{}, fmt.Errorf("save scenario: %w", err)
	}
	s.logger.InfoContext(ctx, "Scenario saved",
		log.FieldSessionID, sessionID,
		log.FieldScenarioID, sc.ID)
	return sc, nil
}

// Scenarios lists the session's scenarios, newest first.
func (s *PlanService) Scenarios(ctx context.Context, sessionID string) ([]core.Scenario, error) {
	list, err := s.scenarios.ListScenarios(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}
	return list, nil
}

func (s *PlanService) DeleteScenario(ctx context.Context, sessionID, id string) error {
	if err := s.scenarios.DeleteScenario(ctx, sessionID, id); err != nil {
		return fmt.Errorf("delete scenario %s: %w", id, err)
	}
	return nil
}

// LoadScenario copies a scenario's inputs into the wizard and moves it to the
// review step.
func (s *PlanService) LoadScenario(ctx context.Context, sessionID, id string) (core.WizardState, error) {
	sc, err := s.scenarios.GetScenario(ctx, sessionID, id)
	if err != nil {
		return core.WizardState{}, fmt.Errorf("get scenario %s: %w", id, err)
	}
	st, err := s.State(ctx, sessionID)
	if err != nil {
		return core.WizardState{}, err
	}
	st.Inputs = sc.Inputs.Normalize()
	st.Step = core.StepReview
	st.UpdatedAt = s.now()
	if err := s.states.SaveState(ctx, st); err != nil {
		return core.WizardState{}, fmt.Errorf("save state: %w", err)
	}
	return st, nil
}

// CompareScenarios calculates the given scenarios side by side, in the order
// asked for. With no ids every scenario of the session is compared.
func (s *PlanService) CompareScenarios(ctx context.Context, sessionID string, ids []string) ([]ScenarioResult, error) {
	var list []core.Scenario
	if len(ids) == 0 {
		all, err := s.Scenarios(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		list = all
	} else {
		seen := make(map[string]bool, len(ids))
		for _, id := range ids {
			id = strings.TrimSpace(id)
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			sc, err := s.scenarios.GetScenario(ctx, sessionID, id)
			if err != nil {
				return nil, fmt.Errorf("get scenario %s: %w", id, err)
			}
			list = append(list, sc)
		}
	}

	out := make([]ScenarioResult, 0, len(list))
	for _, sc := range list {
		res, err := s.Calculate(ctx, sc.Inputs)
		if err != nil {
			return nil, err
		}
		out = append(out, ScenarioResult{Scenario: sc, Results: res})
	}
	return out, nil
}
