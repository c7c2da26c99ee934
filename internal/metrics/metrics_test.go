package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.MarketFallback("rate", "snapshot")
	m.MarketFallback("rate", "snapshot")
	m.MarketFallback("quote", "fallback")
	m.MarketFetch("rate", nil)
	m.MarketFetch("rate", errors.New("boom"))
	m.CalculationDone()
	m.ReportFinished("ready")
	m.RateLimitHit()
	m.SetCacheSize("market", 7)
	m.AMQPPublishFailed()
	m.ObserveHTTP("GET", "/results", 200, 20*time.Millisecond)

	require.Equal(t, 2.0, testutil.ToFloat64(m.marketFallbacks.WithLabelValues("rate", "snapshot")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.marketFallbacks.WithLabelValues("quote", "fallback")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.marketFetches.WithLabelValues("rate", "error")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.calculations))
	require.Equal(t, 1.0, testutil.ToFloat64(m.reports.WithLabelValues("ready")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.rateLimitHits))
	require.Equal(t, 7.0, testutil.ToFloat64(m.cacheSize.WithLabelValues("market")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/results", "200")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.MarketFallback("rate", "fallback")
	m.ObserveHTTP("GET", "/", 200, time.Millisecond)
	m.CalculationDone()
	require.Nil(t, m.Registry())
	require.NotNil(t, m.Handler())
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.CalculationDone()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	require.True(t, strings.Contains(body, "retireplan_calculations_total 1"))
	require.True(t, strings.Contains(body, "go_goroutines"))
}
