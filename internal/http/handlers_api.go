package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"retireplan/internal/calc"
	"retireplan/internal/core"
	"retireplan/internal/market"
)

// apiInputs decodes a request body into inputs on top of the defaults.
// Ranges are clamped later by Normalize, never rejected.
func (s *Server) apiInputs(w http.ResponseWriter, r *http.Request) (core.Inputs, bool) {
	in, err := decodeInputs(r, core.DefaultInputs())
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return core.Inputs{}, false
	}
	return in.Normalize(), true
}

func (s *Server) apiCalculate(w http.ResponseWriter, r *http.Request) (calc.Results, bool) {
	in, ok := s.apiInputs(w, r)
	if !ok {
		return calc.Results{}, false
	}
	res, err := s.calculate(r.Context(), in)
	if err != nil {
		s.apiError(w, r, err)
		return calc.Results{}, false
	}
	return res, true
}

func (s *Server) handleAPICalculate(w http.ResponseWriter, r *http.Request) {
	res, ok := s.apiCalculate(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, struct {
		calc.Results
		Timeline []calc.TimelineRow `json:"timeline"`
	}{Results: res, Timeline: res.Timeline()})
}

func (s *Server) handleAPIScore(w http.ResponseWriter, r *http.Request) {
	res, ok := s.apiCalculate(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, res.Score)
}

// handleAPITax needs no projection, so it skips the market lookups.
func (s *Server) handleAPITax(w http.ResponseWriter, r *http.Request) {
	in, ok := s.apiInputs(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, calc.CalculateTax(in, s.plan.Tables()))
}

func (s *Server) handleAPIWithdrawals(w http.ResponseWriter, r *http.Request) {
	res, ok := s.apiCalculate(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, res.Withdrawals)
}

type ratesResponse struct {
	Base  string        `json:"base"`
	Rates []market.Rate `json:"rates"`
}

// handleAPIRates returns how much one unit of each currency is worth in
// base. Unknown or offline currencies come back with their fallback source.
func (s *Server) handleAPIRates(w http.ResponseWriter, r *http.Request) {
	if s.market == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "market data is not configured")
		return
	}
	q := r.URL.Query()
	base := strings.ToUpper(sanitizeInput(q.Get("base")))
	if base == "" {
		base = market.BaseCurrency
	}
	codes := splitList(q["currencies"], true, maxMarketLookups)
	if len(codes) == 0 {
		codes = s.plan.Tables().Currencies()
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	out := ratesResponse{Base: base, Rates: make([]market.Rate, 0, len(codes))}
	for _, code := range codes {
		value, source := s.market.FX(ctx, code, base)
		out.Rates = append(out.Rates, market.Rate{Currency: code, Value: value, Source: source})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAPIQuotes(w http.ResponseWriter, r *http.Request) {
	if s.market == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "market data is not configured")
		return
	}
	symbols := splitList(r.URL.Query()["symbols"], true, maxMarketLookups)
	if len(symbols) == 0 {
		symbols = s.plan.Tables().Symbols()
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	writeJSON(w, http.StatusOK, map[string]any{"quotes": s.market.Quotes(ctx, symbols)})
}

func (s *Server) handleAPIGetState(w http.ResponseWriter, r *http.Request) {
	sid := s.sessionID(w, r)
	st, err := s.plan.State(r.Context(), sid)
	if err != nil {
		s.apiError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleAPIPutState replaces the session's inputs. Fields left out of the
// body keep their stored value.
func (s *Server) handleAPIPutState(w http.ResponseWriter, r *http.Request) {
	sid := s.sessionID(w, r)
	st, err := s.plan.State(r.Context(), sid)
	if err != nil {
		s.apiError(w, r, err)
		return
	}
	in, err := decodeInputs(r, st.Inputs)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := in.Normalize().Validate(); err != nil {
		s.apiError(w, r, err)
		return
	}
	st, err = s.plan.UpdateInputs(r.Context(), sid, in)
	if err != nil {
		s.apiError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
