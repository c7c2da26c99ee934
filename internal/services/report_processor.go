package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"retireplan/internal/core"
	"retireplan/internal/log"
	"retireplan/internal/sheets"
)

// ReportGenerator renders one stored report.
type ReportGenerator interface {
	Generate(ctx context.Context, reportID string) error
}

// ReportProcessorConfig holds configuration for the report processor
type ReportProcessorConfig struct {
	// PollInterval is how often to check for pending reports (default: 5s)
	PollInterval time.Duration

	// BatchSize is the max number of reports to render per poll cycle (default: 5)
	BatchSize int

	// StaleAfter is how long a report may stay processing before it is
	// considered abandoned and reset to pending (default: 10m)
	StaleAfter time.Duration

	// StaleCheckInterval is how often abandoned reports are looked for (default: 1m)
	StaleCheckInterval time.Duration
}

// DefaultReportProcessorConfig returns sensible defaults
func DefaultReportProcessorConfig() ReportProcessorConfig {
	return ReportProcessorConfig{
		PollInterval:       5 * time.Second,
		BatchSize:          5,
		StaleAfter:         10 * time.Minute,
		StaleCheckInterval: time.Minute,
	}
}

// ReportProcessor polls the store for pending reports and renders them.
type ReportProcessor struct {
	reports   sheets.ReportStore
	generator ReportGenerator
	config    ReportProcessorConfig
	logger    *log.Logger
	now       func() time.Time

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewReportProcessor(reports sheets.ReportStore, generator ReportGenerator, config ReportProcessorConfig, logger *log.Logger) *ReportProcessor {
	def := DefaultReportProcessorConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = def.StaleAfter
	}
	if config.StaleCheckInterval <= 0 {
		config.StaleCheckInterval = def.StaleCheckInterval
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &ReportProcessor{
		reports:   reports,
		generator: generator,
		config:    config,
		logger:    logger.WithComponent(log.ComponentWorker),
		now:       time.Now,
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *ReportProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("report processor is already running")
	}
	p.running = true
	stop, done := make(chan struct{}), make(chan struct{})
	p.stopCh, p.doneCh = stop, done
	p.mu.Unlock()

	// reports left processing by a crash
	p.resetStale(ctx)

	go p.runLoop(ctx, stop, done)

	p.logger.InfoContext(ctx, "Report processor started",
		"poll_interval", p.config.PollInterval.String(),
		"batch_size", p.config.BatchSize)
	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *ReportProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	done := p.doneCh
	close(p.stopCh)
	p.mu.Unlock()

	select {
	case <-done:
		p.logger.InfoContext(ctx, "Report processor stopped gracefully")
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Report processor stop timed out")
		return ctx.Err()
	}
	return nil
}

// IsRunning returns whether the processor is currently running
func (p *ReportProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *ReportProcessor) runLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	pollTicker := time.NewTicker(p.config.PollInterval)
	defer pollTicker.Stop()

	staleTicker := time.NewTicker(p.config.StaleCheckInterval)
	defer staleTicker.Stop()

	p.processBatch(ctx, stop)

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			p.processBatch(ctx, stop)
		case <-staleTicker.C:
			p.resetStale(ctx)
		}
	}
}

// ProcessBatch renders up to BatchSize pending reports and returns how many
// succeeded.
func (p *ReportProcessor) ProcessBatch(ctx context.Context) int {
	return p.processBatch(ctx, nil)
}

func (p *ReportProcessor) processBatch(ctx context.Context, stop <-chan struct{}) int {
	pending, err := p.reports.PendingReports(ctx, p.config.BatchSize)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to list pending reports", log.FieldError, err.Error())
		return 0
	}
	if len(pending) == 0 {
		return 0
	}

	p.logger.DebugContext(ctx, "Processing report batch", "count", len(pending))

	done := 0
	for _, r := range pending {
		select {
		case <-stop:
			return done
		case <-ctx.Done():
			return done
		default:
		}

		if err := p.generator.Generate(ctx, r.ID); err != nil {
			// Generate has already recorded the failure on the report
			continue
		}
		done++
	}
	return done
}

func (p *ReportProcessor) resetStale(ctx context.Context) {
	n, err := p.reports.ResetStaleReports(ctx, p.now().Add(-p.config.StaleAfter))
	if err != nil {
		p.logger.WarnContext(ctx, "Failed to reset stale reports", log.FieldError, err.Error())
		return
	}
	if n > 0 {
		p.logger.InfoContext(ctx, "Reset stale reports", "count", n, "status", core.ReportPending)
	}
}
