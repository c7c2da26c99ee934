package cli

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retireplan/internal/backend"
	"retireplan/internal/config"
	"retireplan/internal/core"
	"retireplan/internal/log"
	"retireplan/internal/tables"
)

func testConfig() *config.Config {
	return &config.Config{
		DataBackend:        "memory",
		RatesAPIURL:        "http://127.0.0.1:0",
		QuotesAPIURL:       "http://127.0.0.1:0",
		MarketTimeout:      50 * time.Millisecond,
		MarketCacheTTL:     time.Minute,
		ReportMaxRetries:   2,
		ReportPollInterval: time.Hour,
		ReportBatchSize:    1,
	}
}

func TestSetupLoggerFallsBackToText(t *testing.T) {
	logger := SetupLogger("xml", "debug", log.ComponentWorker)
	require.NotNil(t, logger)
	assert.Equal(t, log.ComponentWorker, logger.Component())
}

func TestNewServicesOverMemoryBackend(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	be := InitBackend(ctx, log.Discard(), cfg, nil)
	t.Cleanup(func() { _ = be.Cleanup() })

	tbl, err := tables.Load()
	require.NoError(t, err)

	plan, reports := NewServices(cfg, be, nil, tbl, log.Discard(), nil)

	st, err := plan.State(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, core.StepPersonal, st.Step)

	rep, err := reports.Request(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, core.ReportPending, rep.Status)

	n := NewReportProcessor(cfg, be, reports, log.Discard()).ProcessBatch(ctx)
	assert.Equal(t, 1, n)

	got, err := reports.Get(ctx, "s1", rep.ID)
	require.NoError(t, err)
	assert.Equal(t, core.ReportReady, got.Status)
}

func TestNewMarketServiceFallsBackOffline(t *testing.T) {
	cfg := testConfig()
	be, err := backend.NewFactory(nil, nil).CreateBackend(context.Background(), backend.Config{Type: backend.MemoryBackend})
	require.NoError(t, err)

	mkt := NewMarketService(cfg, be.Store, tables.MustLoad(), log.Discard(), nil)
	r := mkt.Rate(context.Background(), "USD")
	assert.Greater(t, r.Value, 0.0)
	assert.Equal(t, "fallback", r.Source)
}
