package http

import (
	"net/http"
	"strconv"

	"retireplan/internal/log"
)

// handleRequestReport queues a PDF report and renders its status partial,
// which polls until the report is finished.
func (s *Server) handleRequestReport(w http.ResponseWriter, r *http.Request) {
	sid := s.sessionID(w, r)
	if _, err := s.plan.State(r.Context(), sid); err != nil {
		s.htmlError(w, r, err)
		return
	}
	rep, err := s.reports.Request(r.Context(), sid)
	if err != nil {
		s.htmlError(w, r, err)
		return
	}

	log.NewStructuredLogger(log.FromContext(r.Context())).LogReportRequested(r.Context(), sid, rep.ID)
	s.render(w, r,
		NewHTMXResponse().Status(http.StatusAccepted).TriggerReportQueued(rep.ID),
		"report", newReportView(rep))
}

func (s *Server) handleReportStatus(w http.ResponseWriter, r *http.Request) {
	sid := s.sessionID(w, r)
	rep, err := s.reports.Get(r.Context(), sid, r.PathValue("id"))
	if err != nil {
		s.htmlError(w, r, err)
		return
	}
	b := NewHTMXResponse()
	if rep.Terminal() {
		// stop htmx polling
		b.Status(286)
	}
	s.render(w, r, b, "report", newReportView(rep))
}

func (s *Server) handleReportPDF(w http.ResponseWriter, r *http.Request) {
	sid := s.sessionID(w, r)
	id := r.PathValue("id")
	pdf, err := s.reports.PDF(r.Context(), sid, id)
	if err != nil {
		s.htmlError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="retirement-plan-`+sanitizeFilename(id)+`.pdf"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

// sanitizeFilename keeps the characters a uuid is made of.
func sanitizeFilename(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '-' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return "report"
	}
	return string(out)
}
