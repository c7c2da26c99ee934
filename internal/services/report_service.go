package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"retireplan/internal/calc"
	"retireplan/internal/core"
	"retireplan/internal/log"
	"retireplan/internal/metrics"
	"retireplan/internal/sheets"
)

// ReportPublisher hands a report job to a worker.
type ReportPublisher interface {
	PublishReportRequest(ctx context.Context, reportID, sessionID string) error
}

// RenderFunc turns results into a PDF document.
type RenderFunc func(calc.Results, core.Inputs) ([]byte, error)

// ReportDeps are the collaborators of a ReportService. Publisher and
// Exporter are optional: without a publisher pending reports are picked up
// by a ReportProcessor, without an exporter nothing is written to Sheets.
type ReportDeps struct {
	Reports    sheets.ReportStore
	States     sheets.StateStore
	Plan       *PlanService
	Render     RenderFunc
	Publisher  ReportPublisher
	Exporter   sheets.ProjectionExporter
	MaxRetries int
	Logger     *log.Logger
	Metrics    *metrics.Metrics
}

// ReportService creates PDF reports of a session's plan.
type ReportService struct {
	reports    sheets.ReportStore
	states     sheets.StateStore
	plan       *PlanService
	render     RenderFunc
	publisher  ReportPublisher
	exporter   sheets.ProjectionExporter
	maxRetries int
	logger     *log.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
	newID      func() string
}

func NewReportService(d ReportDeps) *ReportService {
	logger := d.Logger
	if logger == nil {
		logger = log.Discard()
	}
	if d.MaxRetries <= 0 {
		d.MaxRetries = 3
	}
	return &ReportService{
		reports:    d.Reports,
		states:     d.States,
		plan:       d.Plan,
		render:     d.Render,
		publisher:  d.Publisher,
		exporter:   d.Exporter,
		maxRetries: d.MaxRetries,
		logger:     logger.WithComponent(log.ComponentReport),
		metrics:    d.Metrics,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Request stores a pending report for the session and queues it. A failed
// publish is logged; the report stays pending for the processor to find.
func (s *ReportService) Request(ctx context.Context, sessionID string) (core.Report, error) {
	if sessionID == "" {
		return core.Report{}, core.ErrEmptySession
	}
	if _, err := s.states.LoadState(ctx, sessionID); err != nil {
		return core.Report{}, fmt.Errorf("load state: %w", err)
	}

	now := s.now()
	r := core.Report{
		ID:        s.newID(),
		SessionID: sessionID,
		Status:    core.ReportPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.reports.CreateReport(ctx, r); err != nil {
		return core.Report{}, fmt.Errorf("create report: %w", err)
	}

	if s.publisher != nil {
		if err := s.publisher.PublishReportRequest(ctx, r.ID, sessionID); err != nil {
			s.logger.ErrorContext(ctx, "Failed to publish report request",
				log.FieldReportID, r.ID,
				log.FieldError, err.Error())
		}
	}

	s.logger.InfoContext(ctx, "Report requested",
		log.FieldReportID, r.ID,
		log.FieldSessionID, sessionID)
	return r, nil
}

// Generate renders one report. A report that already finished is left
// alone, so redelivered jobs are harmless. On failure the report goes back
// to pending until it has been attempted MaxRetries times, then it fails.
func (s *ReportService) Generate(ctx context.Context, reportID string) error {
	r, err := s.reports.GetReport(ctx, reportID)
	if err != nil {
		return fmt.Errorf("get report %s: %w", reportID, err)
	}
	if r.Terminal() {
		s.logger.DebugContext(ctx, "Report already finished", log.FieldReportID, reportID, "status", r.Status)
		return nil
	}

	r, err = s.reports.MarkReportProcessing(ctx, reportID)
	if errors.Is(err, core.ErrReportClaimed) {
		s.logger.DebugContext(ctx, "Report claimed elsewhere, skipping", log.FieldReportID, reportID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark report %s processing: %w", reportID, err)
	}

	start := s.now()
	pdf, ref, genErr := s.generate(ctx, r)
	if genErr != nil {
		retry := r.Attempts < s.maxRetries
		if err := s.reports.FailReport(ctx, reportID, genErr.Error(), retry); err != nil {
			return errors.Join(genErr, fmt.Errorf("fail report %s: %w", reportID, err))
		}
		if !retry {
			s.metrics.ReportFinished(string(core.ReportFailed))
		}
		s.logger.ErrorContext(ctx, "Report generation failed",
			log.FieldReportID, reportID,
			log.FieldError, genErr.Error(),
			"attempt", r.Attempts,
			"retry", retry)
		return genErr
	}

	if err := s.reports.CompleteReport(ctx, reportID, pdf, ref); err != nil {
		return fmt.Errorf("complete report %s: %w", reportID, err)
	}
	s.metrics.ReportFinished(string(core.ReportReady))
	s.logger.InfoContext(ctx, "Report generated",
		log.FieldReportID, reportID,
		log.FieldSheetsRef, ref,
		"bytes", len(pdf),
		log.FieldDuration, s.now().Sub(start).Milliseconds())
	return nil
}

func (s *ReportService) generate(ctx context.Context, r core.Report) ([]byte, string, error) {
	st, err := s.states.LoadState(ctx, r.SessionID)
	if err != nil {
		return nil, "", fmt.Errorf("load state: %w", err)
	}
	res, err := s.plan.Calculate(ctx, st.Inputs)
	if err != nil {
		return nil, "", fmt.Errorf("calculate: %w", err)
	}
	pdf, err := s.render(res, res.Inputs)
	if err != nil {
		return nil, "", err
	}

	var ref string
	if s.exporter != nil {
		ref, err = s.exporter.ExportProjection(ctx, r.SessionID, res)
		if err != nil {
			// the PDF is still useful without the sheet
			s.logger.WarnContext(ctx, "Projection export failed",
				log.NewFields().WithOperation(log.OpExport).WithError(err).ToSlice()...)
			ref = ""
		}
	}
	return pdf, ref, nil
}

// Get returns a report owned by the session.
func (s *ReportService) Get(ctx context.Context, sessionID, id string) (core.Report, error) {
	r, err := s.reports.GetReport(ctx, id)
	if err != nil {
		return core.Report{}, err
	}
	if r.SessionID != sessionID {
		return core.Report{}, core.ErrNotFound
	}
	return r, nil
}

// PDF returns the document of a finished report.
func (s *ReportService) PDF(ctx context.Context, sessionID, id string) ([]byte, error) {
	r, err := s.Get(ctx, sessionID, id)
	if err != nil {
		return nil, err
	}
	if r.Status != core.ReportReady || len(r.PDF) == 0 {
		return nil, core.ErrReportNotReady
	}
	return r.PDF, nil
}
