// Package metrics holds the Prometheus collectors shared by the server and
// the workers. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "retireplan"

// DefaultBuckets provides a common set of histogram buckets in seconds that can
// be reused across the application for latency metrics.
var DefaultBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10} //nolint: gochecknoglobals

type Metrics struct {
	registry *prometheus.Registry

	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	calculations     prometheus.Counter
	marketFallbacks  *prometheus.CounterVec
	marketFetches    *prometheus.CounterVec
	reports          *prometheus.CounterVec
	rateLimitHits    prometheus.Counter
	cacheSize        *prometheus.GaugeVec
	amqpPublishFails prometheus.Counter
}

// New registers every collector on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   DefaultBuckets,
		}, []string{"method", "route"}),
		calculations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calculations_total",
			Help:      "Full plan calculations.",
		}),
		marketFallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "market_fallbacks_total",
			Help:      "Market lookups answered from something other than a live fetch.",
		}, []string{"kind", "source"}),
		marketFetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "market_fetches_total",
			Help:      "Live market fetches by kind and outcome.",
		}, []string{"kind", "outcome"}),
		reports: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "Report jobs by final status.",
		}, []string{"status"}),
		rateLimitHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_hits_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
		cacheSize: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_entries",
			Help:      "Entries held by each in-process cache.",
		}, []string{"cache"}),
		amqpPublishFails: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "amqp_publish_failures_total",
			Help:      "Report job publishes that failed.",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) CalculationDone() {
	if m == nil {
		return
	}
	m.calculations.Inc()
}

func (m *Metrics) MarketFallback(kind, source string) {
	if m == nil {
		return
	}
	m.marketFallbacks.WithLabelValues(kind, source).Inc()
}

func (m *Metrics) MarketFetch(kind string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.marketFetches.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) ReportFinished(status string) {
	if m == nil {
		return
	}
	m.reports.WithLabelValues(status).Inc()
}

func (m *Metrics) RateLimitHit() {
	if m == nil {
		return
	}
	m.rateLimitHits.Inc()
}

func (m *Metrics) SetCacheSize(cache string, n int) {
	if m == nil {
		return
	}
	m.cacheSize.WithLabelValues(cache).Set(float64(n))
}

func (m *Metrics) AMQPPublishFailed() {
	if m == nil {
		return
	}
	m.amqpPublishFails.Inc()
}
