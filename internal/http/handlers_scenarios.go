package http

import (
	"errors"
	"net/http"

	"retireplan/internal/core"
	"retireplan/internal/log"
)

func (s *Server) handleListScenarios(w http.ResponseWriter, r *http.Request) {
	sid := s.sessionID(w, r)
	list, err := s.plan.Scenarios(r.Context(), sid)
	if err != nil {
		s.htmlError(w, r, err)
		return
	}
	s.render(w, r, NewHTMXResponse(), "scenarios", scenariosView{Scenarios: list})
}

// handleSaveScenario stores the current inputs under a name and re-renders
// the list. A bad name keeps the form filled in.
func (s *Server) handleSaveScenario(w http.ResponseWriter, r *http.Request) {
	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		BadRequestError("Invalid request format").Write(w)
		return
	}
	name := parser.Get("name")

	sid := s.sessionID(w, r)
	sc, err := s.plan.SaveScenario(r.Context(), sid, name)
	if errors.Is(err, core.ErrEmptyName) || errors.Is(err, core.ErrNameTooLong) {
		list, listErr := s.plan.Scenarios(r.Context(), sid)
		if listErr != nil {
			s.htmlError(w, r, listErr)
			return
		}
		s.render(w, r, NewHTMXResponse().Status(http.StatusUnprocessableEntity),
			"scenarios", scenariosView{Scenarios: list, Name: name, Error: err.Error()})
		return
	}
	if err != nil {
		s.htmlError(w, r, err)
		return
	}

	list, err := s.plan.Scenarios(r.Context(), sid)
	if err != nil {
		s.htmlError(w, r, err)
		return
	}
	s.render(w, r,
		NewHTMXResponse().TriggerScenariosChanged(len(list)).TriggerSuccessNotification("Scenario \""+sc.Name+"\" saved"),
		"scenarios", scenariosView{Scenarios: list})
}

func (s *Server) handleDeleteScenario(w http.ResponseWriter, r *http.Request) {
	sid := s.sessionID(w, r)
	id := r.PathValue("id")
	if err := s.plan.DeleteScenario(r.Context(), sid, id); err != nil {
		s.htmlError(w, r, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Scenario deleted",
		log.FieldSessionID, sid,
		log.FieldScenarioID, id)

	list, err := s.plan.Scenarios(r.Context(), sid)
	if err != nil {
		s.htmlError(w, r, err)
		return
	}
	s.render(w, r, NewHTMXResponse().TriggerScenariosChanged(len(list)), "scenarios", scenariosView{Scenarios: list})
}

// handleLoadScenario copies a scenario into the wizard at the review step.
func (s *Server) handleLoadScenario(w http.ResponseWriter, r *http.Request) {
	sid := s.sessionID(w, r)
	st, err := s.plan.LoadScenario(r.Context(), sid, r.PathValue("id"))
	if err != nil {
		s.htmlError(w, r, err)
		return
	}
	s.render(w, r,
		NewHTMXResponse().TriggerWizardChanged(st.Step).TriggerPlanCompleted(),
		"wizard", newWizardView(st, st.Step, nil, nil))
}

// handleCompareScenarios calculates the scenarios named by ids side by side.
// Without ids every scenario of the session is compared.
func (s *Server) handleCompareScenarios(w http.ResponseWriter, r *http.Request) {
	sid := s.sessionID(w, r)
	ids := splitList(r.URL.Query()["ids"], false, maxScenarioIDs)
	rows, err := s.plan.CompareScenarios(r.Context(), sid, ids)
	if err != nil {
		s.htmlError(w, r, err)
		return
	}
	s.render(w, r, NewHTMXResponse(), "compare", compareView{Rows: rows})
}
