// Package cli provides common CLI initialization utilities.
// This package consolidates repeated initialization patterns across
// cmd/retireplan, cmd/retireplan-worker, cmd/market-refresher and
// cmd/retireplan-cli.
package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"retireplan/internal/backend"
	"retireplan/internal/config"
	"retireplan/internal/log"
	"retireplan/internal/market"
	"retireplan/internal/metrics"
	"retireplan/internal/report"
	"retireplan/internal/services"
	"retireplan/internal/sheets"
	"retireplan/internal/tables"
)

// SetupLogger builds the process logger from LOG_FORMAT and LOG_LEVEL and
// sets it as the default logger. Unknown formats fall back to text.
func SetupLogger(format, level, component string) *log.Logger {
	lvl := log.ParseLevel(level)
	handler, err := log.NewHandler(os.Stdout, format, lvl)
	if err != nil {
		handler, _ = log.NewHandler(os.Stdout, log.FormatText, lvl)
	}
	logger := log.New(log.Config{Level: lvl, Component: component, Handler: handler})
	log.SetDefault(logger)
	if err != nil {
		logger.Warn("Unknown log format, using text", "format", format)
	}
	return logger
}

// LoadEnvFile loads the .env file for local development.
// A missing file is not an error.
func LoadEnvFile() {
	if err := config.LoadEnvFile(); err != nil {
		// logging is not set up yet
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
	}
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Configuration load failed", log.FieldError, err.Error())
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err.Error())
		os.Exit(1)
	}
	return cfg
}

// InitBackend creates the store and optional integrations for cfg.
// Exits the process on failure.
func InitBackend(ctx context.Context, logger *log.Logger, cfg *config.Config, m *metrics.Metrics) *backend.BackendResult {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err.Error())
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger, m).CreateBackend(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err.Error(), "backend", bcfg.Type)
		os.Exit(1)
	}
	return res
}

// InitTables loads the embedded tax, VPW and fallback tables.
// Exits the process on failure.
func InitTables(logger *log.Logger) *tables.Tables {
	t, err := tables.Load()
	if err != nil {
		logger.Error("Failed to load tables", log.FieldError, err.Error())
		os.Exit(1)
	}
	return t
}

// NewMarketService wires the live FX and quote clients to the snapshot store.
func NewMarketService(cfg *config.Config, store sheets.SnapshotStore, t *tables.Tables, logger *log.Logger, m *metrics.Metrics) *market.Service {
	httpClient := &http.Client{Timeout: cfg.MarketTimeout}
	return market.NewService(
		market.NewERAPIClient(httpClient, cfg.RatesAPIURL),
		market.NewChartClient(httpClient, cfg.QuotesAPIURL),
		store,
		t,
		market.Options{
			Timeout:  cfg.MarketTimeout,
			CacheTTL: cfg.MarketCacheTTL,
			Logger:   logger,
			Metrics:  m,
		},
	)
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that is closed once cleanup has finished or timed out.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup(shutdownCtx)
			}
			close(finished)
		}()

		select {
		case <-shutdownCtx.Done():
			logger.Warn("Shutdown timeout reached")
		case <-finished:
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup is done.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}

// NewServices builds the plan and report services on top of a backend.
// mkt may be nil, in which case calculations use the table fallbacks.
func NewServices(cfg *config.Config, be *backend.BackendResult, mkt *market.Service, t *tables.Tables, logger *log.Logger, m *metrics.Metrics) (*services.PlanService, *services.ReportService) {
	deps := services.PlanDeps{
		States:    be.Store,
		Scenarios: be.Store,
		Tables:    t,
		Logger:    logger,
		Metrics:   m,
	}
	if mkt != nil {
		deps.Market = mkt
	}
	plan := services.NewPlanService(deps)

	reports := services.NewReportService(services.ReportDeps{
		Reports:    be.Store,
		States:     be.Store,
		Plan:       plan,
		Render:     report.Render,
		Publisher:  be.Publisher(),
		Exporter:   be.Exporter,
		MaxRetries: cfg.ReportMaxRetries,
		Logger:     logger,
		Metrics:    m,
	})
	return plan, reports
}

// NewReportProcessor builds the polling sweep over pending reports.
func NewReportProcessor(cfg *config.Config, be *backend.BackendResult, gen services.ReportGenerator, logger *log.Logger) *services.ReportProcessor {
	return services.NewReportProcessor(be.Store, gen, services.ReportProcessorConfig{
		PollInterval: cfg.ReportPollInterval,
		BatchSize:    cfg.ReportBatchSize,
	}, logger)
}
