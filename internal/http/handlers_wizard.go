package http

import (
	"net/http"

	"retireplan/internal/core"
	"retireplan/internal/log"
)

// handleWizardStep renders one step and remembers it as the current one.
func (s *Server) handleWizardStep(w http.ResponseWriter, r *http.Request) {
	step, err := stepFromPath(r)
	if err != nil {
		NotFoundError("Unknown wizard step").Write(w)
		return
	}

	sid := s.sessionID(w, r)
	st, err := s.plan.GoTo(r.Context(), sid, step)
	if err != nil {
		s.htmlError(w, r, err)
		return
	}
	s.render(w, r, NewHTMXResponse().TriggerWizardChanged(step), "wizard", newWizardView(st, step, nil, nil))
}

// handleSubmitStep applies a step form. Rejected forms come back with 422
// and the values as typed; accepted ones render the next step.
func (s *Server) handleSubmitStep(w http.ResponseWriter, r *http.Request) {
	step, err := stepFromPath(r)
	if err != nil {
		NotFoundError("Unknown wizard step").Write(w)
		return
	}

	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		BadRequestError("Invalid request format").Write(w)
		return
	}
	form := parser.StepForm(step)

	sid := s.sessionID(w, r)
	st, err := s.plan.SubmitStep(r.Context(), sid, step, form)
	if verrs, ok := core.AsValidationErrors(err); ok {
		s.render(w, r,
			NewHTMXResponse().Status(http.StatusUnprocessableEntity).TriggerErrorNotification("Please fix the highlighted fields"),
			"wizard", newWizardView(st, step, form, verrs))
		return
	}
	if err != nil {
		s.htmlError(w, r, err)
		return
	}

	log.FromContext(r.Context()).InfoContext(r.Context(), "Wizard step saved",
		log.NewFields().WithSession(sid, int(step)).WithOperation(log.OpUpdate).ToSlice()...)

	b := NewHTMXResponse().TriggerWizardChanged(st.Step)
	if step == core.StepReview {
		b.TriggerPlanCompleted().TriggerSuccessNotification("Plan saved")
	}
	s.render(w, r, b, "wizard", newWizardView(st, st.Step, nil, nil))
}

func (s *Server) handleWizardBack(w http.ResponseWriter, r *http.Request) {
	sid := s.sessionID(w, r)
	st, err := s.plan.Back(r.Context(), sid)
	if err != nil {
		s.htmlError(w, r, err)
		return
	}
	s.render(w, r, NewHTMXResponse().TriggerWizardChanged(st.Step), "wizard", newWizardView(st, st.Step, nil, nil))
}

func (s *Server) handleWizardReset(w http.ResponseWriter, r *http.Request) {
	sid := s.sessionID(w, r)
	st, err := s.plan.Reset(r.Context(), sid)
	if err != nil {
		s.htmlError(w, r, err)
		return
	}
	s.render(w, r,
		NewHTMXResponse().TriggerWizardChanged(st.Step).TriggerNotification(NotificationInfo, "Started over with default values", 3000),
		"wizard", newWizardView(st, st.Step, nil, nil))
}

// handleResults renders the dashboard for the session's current inputs.
func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	sid := s.sessionID(w, r)
	st, err := s.plan.State(r.Context(), sid)
	if err != nil {
		s.htmlError(w, r, err)
		return
	}
	res, err := s.calculate(r.Context(), st.Inputs)
	if err != nil {
		s.htmlError(w, r, err)
		return
	}
	s.render(w, r, NewHTMXResponse(), "results", newResultsView(st, res))
}
