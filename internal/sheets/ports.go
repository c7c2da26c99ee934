package sheets

import (
	"context"
	"time"

	"retireplan/internal/calc"
	"retireplan/internal/core"
)

// Ports for outbound adapters. Lookups that find nothing return core.ErrNotFound.
type (
	StateStore interface {
		LoadState(ctx context.Context, sessionID string) (core.WizardState, error)
		// SaveState inserts or replaces the session's state. Last write wins.
		SaveState(ctx context.Context, st core.WizardState) error
		DeleteState(ctx context.Context, sessionID string) error
	}

	ScenarioStore interface {
		SaveScenario(ctx context.Context, sc core.Scenario) error
		// ListScenarios returns a session's scenarios, newest first.
		ListScenarios(ctx context.Context, sessionID string) ([]core.Scenario, error)
		GetScenario(ctx context.Context, sessionID, id string) (core.Scenario, error)
		DeleteScenario(ctx context.Context, sessionID, id string) error
	}

	// ReportStore tracks report jobs through pending, processing, ready and failed.
	ReportStore interface {
		CreateReport(ctx context.Context, r core.Report) error
		GetReport(ctx context.Context, id string) (core.Report, error)
		// MarkReportProcessing moves a pending report to processing and counts
		// the attempt. Reports that are not pending return core.ErrReportClaimed.
		MarkReportProcessing(ctx context.Context, id string) (core.Report, error)
		CompleteReport(ctx context.Context, id string, pdf []byte, sheetsRef string) error
		// FailReport records reason. With retry the report goes back to pending,
		// otherwise it is failed for good.
		FailReport(ctx context.Context, id, reason string, retry bool) error
		// PendingReports returns up to limit pending reports, oldest first.
		PendingReports(ctx context.Context, limit int) ([]core.Report, error)
		// ResetStaleReports puts reports stuck in processing since before
		// olderThan back to pending and returns how many it reset.
		ResetStaleReports(ctx context.Context, olderThan time.Time) (int, error)
	}

	SnapshotStore interface {
		SaveSnapshot(ctx context.Context, s core.MarketSnapshot) error
		LatestSnapshot(ctx context.Context, kind core.SnapshotKind, key string) (core.MarketSnapshot, error)
	}

	// ProjectionExporter copies a calculation to an external spreadsheet.
	ProjectionExporter interface {
		ExportProjection(ctx context.Context, sessionID string, r calc.Results) (ref string, err error)
	}

	// Store is everything the planner persists.
	Store interface {
		StateStore
		ScenarioStore
		ReportStore
		SnapshotStore
	}
)
