package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"retireplan/internal/calc"
	"retireplan/internal/core"
	"retireplan/internal/sheets"
	"retireplan/internal/tables"
)

var (
	_ sheets.Store              = (*Store)(nil)
	_ sheets.ProjectionExporter = (*Store)(nil)
)

func TestMemoryStoreState(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New()

	if _, err := s.LoadState(ctx, "s1"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	st := core.NewWizardState("s1", created)
	if err := s.SaveState(ctx, st); err != nil {
		t.Fatalf("save: %v", err)
	}

	st.Step = core.StepSavings
	st.CreatedAt = created.Add(time.Hour)
	if err := s.SaveState(ctx, st); err != nil {
		t.Fatalf("save again: %v", err)
	}

	got, err := s.LoadState(ctx, "s1")
	if err != nil || got.Step != core.StepSavings || !got.CreatedAt.Equal(created) {
		t.Fatalf("unexpected state: %+v err=%v", got, err)
	}

	if err := s.DeleteState(ctx, "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.LoadState(ctx, "s1"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestMemoryStoreScenarios(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New()

	for i, name := range []string{"a", "b"} {
		err := s.SaveScenario(ctx, core.Scenario{
			ID: name, SessionID: "s1", Name: name, Inputs: core.DefaultInputs(),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("save %s: %v", name, err)
		}
	}

	list, _ := s.ListScenarios(ctx, "s1")
	if len(list) != 2 || list[0].ID != "b" {
		t.Fatalf("unexpected list: %+v", list)
	}
	if _, err := s.GetScenario(ctx, "other", "a"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected scenarios to be scoped by session, got %v", err)
	}
	if err := s.DeleteScenario(ctx, "s1", "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteScenario(ctx, "s1", "a"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestMemoryStoreReports(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New().WithClock(func() time.Time { return now })

	if err := s.CreateReport(ctx, core.Report{ID: "r1", SessionID: "s1"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateReport(ctx, core.Report{ID: "r1", SessionID: "s1"}); err == nil {
		t.Fatalf("expected duplicate id to fail")
	}

	r, err := s.MarkReportProcessing(ctx, "r1")
	if err != nil || r.Attempts != 1 || r.Status != core.ReportProcessing {
		t.Fatalf("unexpected processing report: %+v err=%v", r, err)
	}
	if _, err := s.MarkReportProcessing(ctx, "r1"); !errors.Is(err, core.ErrReportClaimed) {
		t.Fatalf("second claim: got %v, want ErrReportClaimed", err)
	}
	if _, err := s.MarkReportProcessing(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("missing claim: got %v, want ErrNotFound", err)
	}

	now = now.Add(time.Hour)
	n, _ := s.ResetStaleReports(ctx, now.Add(-time.Minute))
	if n != 1 {
		t.Fatalf("expected one stale report, got %d", n)
	}

	pending, _ := s.PendingReports(ctx, 5)
	if len(pending) != 1 {
		t.Fatalf("expected one pending report, got %d", len(pending))
	}

	if err := s.CompleteReport(ctx, "r1", []byte("pdf"), "mem:1"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	r, _ = s.GetReport(ctx, "r1")
	if r.Status != core.ReportReady || string(r.PDF) != "pdf" {
		t.Fatalf("unexpected ready report: %+v", r)
	}

	if err := s.FailReport(ctx, "missing", "x", false); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStoreSnapshotsAndExports(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.SaveSnapshot(ctx, core.MarketSnapshot{Kind: core.SnapshotQuote, Key: "AAPL", Value: 0}); !errors.Is(err, core.ErrInvalidSnapshot) {
		t.Fatalf("expected invalid snapshot, got %v", err)
	}
	if err := s.SaveSnapshot(ctx, core.MarketSnapshot{Kind: core.SnapshotQuote, Key: "AAPL", Value: 201.5, Currency: "USD"}); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}
	snap, err := s.LatestSnapshot(ctx, core.SnapshotQuote, "AAPL")
	if err != nil || snap.Value != 201.5 || snap.FetchedAt.IsZero() {
		t.Fatalf("unexpected snapshot: %+v err=%v", snap, err)
	}

	res := calc.Calculate(core.DefaultInputs(), calc.MarketInputs{}, tables.MustLoad())
	ref, err := s.ExportProjection(ctx, "s1", res)
	if err != nil || ref != "mem:1" {
		t.Fatalf("unexpected export: ref=%q err=%v", ref, err)
	}
	if got := s.Exports(); len(got) != 1 || got[0].Rows != 37 {
		t.Fatalf("unexpected exports: %+v", got)
	}
}
