package main

import (
	"context"
	"errors"
	"net/http"
	"os"

	"retireplan/internal/cli"
	apphttp "retireplan/internal/http"
	"retireplan/internal/log"
	"retireplan/internal/metrics"
)

func main() {
	cli.LoadEnvFile()

	bootLogger := cli.SetupLogger(os.Getenv("LOG_FORMAT"), os.Getenv("LOG_LEVEL"), log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(bootLogger)
	logger := cli.SetupLogger(cfg.LogFormat, cfg.LogLevel, log.ComponentApp)

	m := metrics.New()
	be := cli.InitBackend(context.Background(), logger, cfg, m)
	t := cli.InitTables(logger)
	mkt := cli.NewMarketService(cfg, be.Store, t, logger, m)
	plan, reports := cli.NewServices(cfg, be, mkt, t, logger, m)

	checks := []apphttp.ReadinessCheck{{Name: "store", Check: be.Ping}}
	if be.Broker != nil {
		broker := be.Broker
		checks = append(checks, apphttp.ReadinessCheck{
			Name:  "amqp",
			Check: func(context.Context) error { return broker.Ping() },
		})
	}

	srv := apphttp.NewServer(apphttp.Options{
		Addr:               ":" + cfg.Port,
		Plan:               plan,
		Reports:            reports,
		Market:             mkt,
		Metrics:            m,
		Logger:             logger,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		SecureCookies:      os.Getenv("SECURE_COOKIES") == "true",
		Checks:             checks,
	})

	// Without a broker nobody else renders reports, so poll for them here.
	processor := cli.NewReportProcessor(cfg, be, reports, logger)
	if be.Broker == nil {
		if err := processor.Start(context.Background()); err != nil {
			logger.Error("Failed to start report processor", log.FieldError, err.Error())
			os.Exit(1)
		}
		logger.Info("Report processor started", "poll_interval", cfg.ReportPollInterval)
	}

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err.Error())
		}
		if processor.IsRunning() {
			if err := processor.Stop(ctx); err != nil {
				logger.Error("Report processor shutdown error", log.FieldError, err.Error())
			}
		}
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err.Error())
		}
	})

	logger.Info("Starting retireplan server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"amqp", be.Broker != nil,
		"sheets", be.Exporter != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err.Error(), "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
