package main

import (
	"context"
	"errors"
	"os"
	"time"

	"retireplan/internal/cli"
	"retireplan/internal/log"
	"retireplan/internal/metrics"
	"retireplan/internal/worker"
)

// marketMaxAge is how old a stored snapshot may get before startup refreshes it.
const marketMaxAge = 12 * time.Hour

func main() {
	cli.LoadEnvFile()

	bootLogger := cli.SetupLogger(os.Getenv("LOG_FORMAT"), os.Getenv("LOG_LEVEL"), log.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(bootLogger)
	logger := cli.SetupLogger(cfg.LogFormat, cfg.LogLevel, log.ComponentWorker)

	logger.Info("Starting retireplan-worker")

	if !cfg.AMQPEnabled() {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	m := metrics.New()
	be := cli.InitBackend(context.Background(), logger, cfg, m)
	if be.Broker == nil {
		logger.Error("AMQP broker is unreachable")
		_ = be.Cleanup()
		os.Exit(1)
	}

	t := cli.InitTables(logger)
	mkt := cli.NewMarketService(cfg, be.Store, t, logger, m)
	_, reports := cli.NewServices(cfg, be, mkt, t, logger, m)
	w := worker.NewReportWorker(be.Store, reports, be.Store, mkt, logger)

	// Sweeps up reports whose message was lost or whose worker died.
	processor := cli.NewReportProcessor(cfg, be, reports, logger)

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(ctx context.Context) {
		logger.Info("Shutting down worker...")
		if processor.IsRunning() {
			if err := processor.Stop(ctx); err != nil {
				logger.Error("Report processor shutdown error", log.FieldError, err.Error())
			}
		}
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err.Error())
		}
	})

	logger.Info("Checking market snapshots...")
	if res, err := w.RefreshMarketIfNeeded(ctx, cfg.MarketCurrencies, cfg.MarketSymbols, marketMaxAge); err != nil {
		// calculations fall back to the tables, keep going
		logger.Warn("Startup market refresh incomplete", log.FieldError, err.Error())
	} else {
		logger.Info("Startup market refresh done", "rates", res.Rates, "quotes", res.Quotes)
	}

	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start report processor", log.FieldError, err.Error())
		os.Exit(1)
	}

	go func() {
		if err := be.Broker.ConsumeReportRequests(ctx, w.HandleReportRequest); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", log.FieldError, err.Error())
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
