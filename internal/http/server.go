package http

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"sync"
	"time"

	"retireplan/internal/cache"
	"retireplan/internal/calc"
	"retireplan/internal/core"
	"retireplan/internal/log"
	"retireplan/internal/market"
	"retireplan/internal/metrics"
	"retireplan/internal/middleware/ratelimit"
	"retireplan/internal/middleware/security"
	"retireplan/internal/middleware/trace"
	"retireplan/internal/services"
	appweb "retireplan/web"
)

const (
	resultsCacheSize  = 256
	resultsCacheTTL   = 5 * time.Minute
	cacheSweepEvery   = 10 * time.Minute
	readyCheckTimeout = 5 * time.Second
)

// ReadinessCheck is one dependency probed by /readyz.
type ReadinessCheck struct {
	Name  string
	Check func(context.Context) error
}

// Options wires a Server. Market may be nil, in which case the rates and
// quotes endpoints answer 503 and RSUs are valued from fallbacks.
type Options struct {
	Addr               string
	Plan               *services.PlanService
	Reports            *services.ReportService
	Market             *market.Service
	Metrics            *metrics.Metrics
	Logger             *log.Logger
	RateLimitPerMinute int
	SecureCookies      bool
	Checks             []ReadinessCheck
}

// Server serves the wizard UI, the dashboards and the JSON API.
type Server struct {
	http.Server

	plan    *services.PlanService
	reports *services.ReportService
	market  *market.Service
	metrics *metrics.Metrics
	logger  *log.Logger

	templates *template.Template
	limiter   *ratelimit.Limiter
	detector  *security.Detector
	tracer    *trace.Middleware
	caches    *cache.Manager
	results   *cache.LRUCache[calc.Results]

	checks        []ReadinessCheck
	secureCookies bool
	startedAt     time.Time
	shutdownOnce  sync.Once
}

// NewServer configures routes, middleware and templates, returning a
// ready-to-run server. Call Shutdown to stop its background goroutines.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}

	s := &Server{
		plan:          opts.Plan,
		reports:       opts.Reports,
		market:        opts.Market,
		metrics:       opts.Metrics,
		logger:        logger.WithComponent(log.ComponentHTTP),
		limiter:       ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		detector:      security.NewDetector(logger),
		results:       cache.NewLRUCache[calc.Results](resultsCacheSize, resultsCacheTTL),
		checks:        opts.Checks,
		secureCookies: opts.SecureCookies,
		startedAt:     time.Now(),
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP, logger, opts.Metrics)

	s.caches = cache.NewManager(func(removed int) {
		s.reportCacheSizes()
		if removed > 0 {
			s.logger.Debug("Cache cleanup completed", "entries_removed", removed)
		}
	})
	s.caches.Register(s.results)
	if s.market != nil {
		for _, c := range s.market.Caches() {
			s.caches.Register(c)
		}
	}
	s.caches.StartCleanup(cacheSweepEvery)

	t, err := appweb.ParseTemplates(templateFuncs)
	if err != nil {
		s.logger.Warn("Failed parsing templates",
			log.FieldError, err.Error(),
			"error_type", log.ErrorTypeConfiguration)
	} else {
		s.templates = t
	}

	mux := http.NewServeMux()
	s.routes(mux)

	var handler http.Handler = trace.Route(mux)
	handler = s.limiter.Middleware(s.detector.ExtractClientIP, ratelimit.Mutating, s.onRateLimit)(handler)
	handler = s.detector.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = log.RequestIDMiddleware(trace.RequestID)(handler)
	handler = log.Middleware(logger.WithComponent(log.ComponentHTTP))(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	if sub, err := appweb.Static(); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err.Error())
	}

	page := func(h http.HandlerFunc) http.Handler { return security.NoStore(h) }

	mux.Handle("GET /{$}", page(s.handleIndex))
	mux.Handle("GET /wizard/step/{step}", page(s.handleWizardStep))
	mux.Handle("POST /wizard/step/{step}", page(s.handleSubmitStep))
	mux.Handle("POST /wizard/back", page(s.handleWizardBack))
	mux.Handle("POST /wizard/reset", page(s.handleWizardReset))
	mux.Handle("GET /results", page(s.handleResults))

	mux.Handle("GET /scenarios", page(s.handleListScenarios))
	mux.Handle("POST /scenarios", page(s.handleSaveScenario))
	mux.Handle("GET /scenarios/compare", page(s.handleCompareScenarios))
	mux.Handle("POST /scenarios/{id}/delete", page(s.handleDeleteScenario))
	mux.Handle("POST /scenarios/{id}/load", page(s.handleLoadScenario))

	mux.Handle("POST /reports", page(s.handleRequestReport))
	mux.Handle("GET /reports/{id}", page(s.handleReportStatus))
	mux.Handle("GET /reports/{id}/pdf", page(s.handleReportPDF))

	mux.HandleFunc("POST /api/v1/calculate", s.handleAPICalculate)
	mux.HandleFunc("POST /api/v1/score", s.handleAPIScore)
	mux.HandleFunc("POST /api/v1/tax", s.handleAPITax)
	mux.HandleFunc("POST /api/v1/withdrawals", s.handleAPIWithdrawals)
	mux.HandleFunc("GET /api/v1/rates", s.handleAPIRates)
	mux.HandleFunc("GET /api/v1/quotes", s.handleAPIQuotes)
	mux.HandleFunc("GET /api/v1/state", s.handleAPIGetState)
	mux.HandleFunc("PUT /api/v1/state", s.handleAPIPutState)

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", s.metrics.Handler())
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	s.metrics.RateLimitHit()
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.NewFields().
			WithClientIP(s.detector.ExtractClientIP(r)).
			WithHTTPRequest(r.Method, r.URL.Path, "", "", "").
			WithComponent(log.ComponentRateLimit).
			ToSlice()...)

	const msg = "Rate limit exceeded. Please try again later."
	if isAPI(r) {
		writeJSONError(w, http.StatusTooManyRequests, msg)
		return
	}
	ErrorResponse(http.StatusTooManyRequests, msg).Write(w)
}

// calculate runs a plan through the results cache. Results are a pure
// function of the normalised inputs and market data, so a short TTL keeps
// market changes visible.
func (s *Server) calculate(ctx context.Context, in core.Inputs) (calc.Results, error) {
	in = in.Normalize()
	key, err := inputsKey(in)
	if err == nil {
		if res, ok := s.results.Get(key); ok {
			return res, nil
		}
	}

	res, err := s.plan.Calculate(ctx, in)
	if err != nil {
		return calc.Results{}, err
	}
	if key != "" {
		s.results.Set(key, res)
	}
	return res, nil
}

func inputsKey(in core.Inputs) (string, error) {
	raw, err := json.Marshal(in)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

func (s *Server) reportCacheSizes() {
	s.metrics.SetCacheSize("results", s.results.Size())
	if s.market != nil {
		s.metrics.SetCacheSize("market", s.market.CacheSize())
	}
}

// render executes a template into a buffer first so a failing template
// never leaves a half-written response.
func (s *Server) render(w http.ResponseWriter, r *http.Request, b *HTMXResponseBuilder, name string, data any) {
	logger := log.FromContext(r.Context())
	if s.templates == nil {
		logger.ErrorContext(r.Context(), "Templates not loaded",
			log.FieldPath, r.URL.Path,
			log.FieldComponent, log.ComponentTemplate,
			"error_type", log.ErrorTypeConfiguration)
		InternalServerError("templates not loaded").Write(w)
		return
	}

	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		logger.ErrorContext(r.Context(), "Template execution failed",
			log.NewFields().WithError(err).WithOperation(log.OpRender).ToSlice()...)
		InternalServerError("Error rendering page").Write(w)
		return
	}
	b.BodyHTML(buf.Bytes()).Write(w)
}

// htmlError maps service errors to an error partial.
func (s *Server) htmlError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := classify(err)
	if status >= http.StatusInternalServerError {
		log.NewStructuredLogger(log.FromContext(r.Context())).LogError(r.Context(), "Request failed", err,
			log.ComponentHTTP, "", log.NewFields().WithHTTPRequest(r.Method, r.URL.Path, "", "", ""))
	}
	ErrorResponse(status, msg).Write(w)
}

// apiError maps service errors to a JSON error body.
func (s *Server) apiError(w http.ResponseWriter, r *http.Request, err error) {
	if verrs, ok := core.AsValidationErrors(err); ok {
		writeValidationError(w, verrs)
		return
	}
	status, msg := classify(err)
	if status >= http.StatusInternalServerError {
		log.NewStructuredLogger(log.FromContext(r.Context())).LogError(r.Context(), "API request failed", err,
			log.ComponentHTTP, "", log.NewFields().WithHTTPRequest(r.Method, r.URL.Path, "", "", ""))
	}
	writeJSONError(w, status, msg)
}

func classify(err error) (int, string) {
	if verrs, ok := core.AsValidationErrors(err); ok {
		return http.StatusUnprocessableEntity, verrs.Error()
	}
	switch {
	case errors.Is(err, core.ErrNotFound), errors.Is(err, core.ErrInvalidStep):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, core.ErrEmptyName), errors.Is(err, core.ErrNameTooLong):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, core.ErrReportNotReady):
		return http.StatusConflict, "Report is not ready yet"
	case errors.Is(err, errBodyTooLarge):
		return http.StatusRequestEntityTooLarge, err.Error()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "Request cancelled"
	default:
		return http.StatusInternalServerError, "Something went wrong"
	}
}

func isAPI(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/")
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
