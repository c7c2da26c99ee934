package main

import (
	"context"
	"flag"
	"os"
	"time"

	"retireplan/internal/cli"
	"retireplan/internal/log"
	"retireplan/internal/metrics"
	"retireplan/internal/worker"
)

func main() {
	once := flag.Bool("once", false, "refresh every snapshot once and exit")
	flag.Parse()

	cli.LoadEnvFile()

	bootLogger := cli.SetupLogger(os.Getenv("LOG_FORMAT"), os.Getenv("LOG_LEVEL"), log.ComponentMarket)
	cfg := cli.LoadAndValidateConfig(bootLogger)
	logger := cli.SetupLogger(cfg.LogFormat, cfg.LogLevel, log.ComponentMarket)

	logger.Info("Starting market-refresher",
		"interval", cfg.MarketRefreshInterval,
		"currencies", cfg.MarketCurrencies,
		"symbols", cfg.MarketSymbols)

	m := metrics.New()
	be := cli.InitBackend(context.Background(), logger, cfg, m)
	t := cli.InitTables(logger)
	mkt := cli.NewMarketService(cfg, be.Store, t, logger, m)
	w := worker.NewReportWorker(be.Store, nil, be.Store, mkt, logger)

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(context.Context) {
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err.Error())
		}
	})

	refresh := func() {
		// Snapshots younger than the interval are still good.
		res, err := w.RefreshMarketIfNeeded(ctx, cfg.MarketCurrencies, cfg.MarketSymbols, cfg.MarketRefreshInterval)
		if err != nil {
			logger.Warn("Market refresh incomplete", log.FieldError, err.Error(), "rates", res.Rates, "quotes", res.Quotes)
			return
		}
		logger.Info("Market refresh done", "rates", res.Rates, "quotes", res.Quotes)
	}

	if *once {
		if _, err := w.ForceRefreshMarket(ctx, cfg.MarketCurrencies, cfg.MarketSymbols); err != nil {
			logger.Error("Market refresh failed", log.FieldError, err.Error())
			_ = be.Cleanup()
			os.Exit(1)
		}
		_ = be.Cleanup()
		return
	}

	refresh()
	ticker := time.NewTicker(cfg.MarketRefreshInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				refresh()
			}
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Market refresher stopped")
}
