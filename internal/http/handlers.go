package http

import (
	"context"
	"net/http"
	"time"

	"retireplan/internal/log"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
	})
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	for _, c := range s.checks {
		if err := c.Check(ctx); err != nil {
			checks[c.Name] = "failed: " + err.Error()
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
			continue
		}
		checks[c.Name] = "ok"
	}

	marketEntries := 0
	if s.market != nil {
		marketEntries = s.market.CacheSize()
	}
	checks["cache"] = map[string]any{
		"results_entries": s.results.Size(),
		"market_entries":  marketEntries,
		"results_hit":     s.results.Stats().HitRatio(),
	}
	checks["rate_limiter"] = map[string]any{
		"active_clients": s.limiter.ActiveClients(),
		"rejected":       s.limiter.Hits(),
	}
	sec := s.detector.GetMetrics()
	checks["security"] = map[string]any{
		"suspicious_requests": sec.SuspiciousRequests,
		"blocked_requests":    sec.BlockedRequests,
	}
	checks["requests"] = s.tracer.GetCounters().TotalRequests

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleIndex renders the full page at the session's stored step.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sid := s.sessionID(w, r)
	st, err := s.plan.State(r.Context(), sid)
	if err != nil {
		s.htmlError(w, r, err)
		return
	}

	log.FromContext(r.Context()).DebugContext(r.Context(), "Wizard page served",
		log.NewFields().WithSession(sid, int(st.Step)).ToSlice()...)

	s.render(w, r, NewHTMXResponse(), "index.html", pageView{
		Wizard:    newWizardView(st, st.Step, nil, nil),
		SessionID: sid,
		Completed: st.Completed,
	})
}
