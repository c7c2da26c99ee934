package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"retireplan/internal/amqp"
	"retireplan/internal/core"
	"retireplan/internal/log"
	"retireplan/internal/market"
	"retireplan/internal/services"
	"retireplan/internal/sheets"
)

// MarketRefresher fetches live market values and stores them as snapshots.
type MarketRefresher interface {
	Refresh(ctx context.Context, currencies, symbols []string) (market.RefreshResult, error)
}

// ReportWorker handles report jobs delivered over AMQP and keeps the market
// snapshots used as offline fallbacks fresh.
type ReportWorker struct {
	reports   sheets.ReportStore
	generator services.ReportGenerator
	snapshots sheets.SnapshotStore
	market    MarketRefresher
	logger    *log.Logger
	now       func() time.Time
}

// NewReportWorker wires a worker. snapshots and refresher may be nil when
// the worker only renders reports.
func NewReportWorker(reports sheets.ReportStore, generator services.ReportGenerator, snapshots sheets.SnapshotStore, refresher MarketRefresher, logger *log.Logger) *ReportWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &ReportWorker{
		reports:   reports,
		generator: generator,
		snapshots: snapshots,
		market:    refresher,
		logger:    logger.WithComponent(log.ComponentWorker),
		now:       time.Now,
	}
}

// HandleReportRequest renders the report named by msg. A nil error acks the
// delivery: unknown reports, finished reports and failures already recorded
// on the report are not requeued. Only store errors are returned, so the
// broker redelivers the job.
func (w *ReportWorker) HandleReportRequest(ctx context.Context, msg *amqp.ReportRequest) error {
	w.logger.InfoContext(ctx, "Processing report request",
		log.FieldReportID, msg.ReportID,
		log.FieldSessionID, msg.SessionID)

	r, err := w.reports.GetReport(ctx, msg.ReportID)
	if errors.Is(err, core.ErrNotFound) {
		w.logger.WarnContext(ctx, "Report request for unknown report, dropping",
			log.FieldReportID, msg.ReportID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get report: %w", err)
	}
	if msg.SessionID != "" && r.SessionID != msg.SessionID {
		w.logger.WarnContext(ctx, "Report request session mismatch, dropping",
			log.FieldReportID, msg.ReportID,
			log.FieldSessionID, msg.SessionID)
		return nil
	}
	if r.Terminal() {
		w.logger.DebugContext(ctx, "Report already finished, skipping",
			log.FieldReportID, msg.ReportID,
			"status", r.Status)
		return nil
	}

	genErr := w.generator.Generate(ctx, msg.ReportID)
	if genErr == nil {
		return nil
	}

	// Generate records render failures on the report itself.
	after, err := w.reports.GetReport(ctx, msg.ReportID)
	if err != nil {
		return errors.Join(genErr, fmt.Errorf("reload report: %w", err))
	}
	if after.Status == core.ReportPending || after.Status == core.ReportFailed {
		w.logger.WarnContext(ctx, "Report generation failed, left for retry",
			log.FieldReportID, msg.ReportID,
			log.FieldError, genErr.Error(),
			"status", after.Status,
			"attempts", after.Attempts)
		return nil
	}
	return genErr
}

// RefreshMarketIfNeeded refreshes the snapshots of currencies and symbols
// that are missing or older than maxAge, and leaves fresh ones alone.
func (w *ReportWorker) RefreshMarketIfNeeded(ctx context.Context, currencies, symbols []string, maxAge time.Duration) (market.RefreshResult, error) {
	if w.market == nil {
		return market.RefreshResult{}, fmt.Errorf("%w: no market refresher configured", market.ErrUnavailable)
	}

	var staleRates, staleQuotes []string
	for _, code := range currencies {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code == "" || code == market.BaseCurrency {
			continue
		}
		if w.isStale(ctx, core.SnapshotRate, code, maxAge) {
			staleRates = append(staleRates, code)
		}
	}
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		if w.isStale(ctx, core.SnapshotQuote, sym, maxAge) {
			staleQuotes = append(staleQuotes, sym)
		}
	}

	if len(staleRates) == 0 && len(staleQuotes) == 0 {
		w.logger.InfoContext(ctx, "Market snapshots are fresh",
			"currencies", len(currencies),
			"symbols", len(symbols),
			"max_age", maxAge.String())
		return market.RefreshResult{}, nil
	}

	w.logger.InfoContext(ctx, "Market snapshots are stale, refreshing",
		"rates", staleRates,
		"quotes", staleQuotes)
	return w.market.Refresh(ctx, staleRates, staleQuotes)
}

// ForceRefreshMarket refreshes every given currency and symbol regardless
// of snapshot age.
func (w *ReportWorker) ForceRefreshMarket(ctx context.Context, currencies, symbols []string) (market.RefreshResult, error) {
	if w.market == nil {
		return market.RefreshResult{}, fmt.Errorf("%w: no market refresher configured", market.ErrUnavailable)
	}
	w.logger.InfoContext(ctx, "Force refreshing market snapshots",
		"currencies", len(currencies),
		"symbols", len(symbols))
	return w.market.Refresh(ctx, currencies, symbols)
}

func (w *ReportWorker) isStale(ctx context.Context, kind core.SnapshotKind, key string, maxAge time.Duration) bool {
	if w.snapshots == nil {
		return true
	}
	snap, err := w.snapshots.LatestSnapshot(ctx, kind, key)
	if err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			w.logger.WarnContext(ctx, "Could not read market snapshot, refreshing",
				"kind", kind,
				"key", key,
				log.FieldError, err.Error())
		}
		return true
	}
	return w.now().Sub(snap.FetchedAt) > maxAge
}
