package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"retireplan/internal/calc"
	"retireplan/internal/core"
)

type snapshotKey struct {
	kind core.SnapshotKind
	key  string
}

// Store keeps everything in process memory. It implements sheets.Store and
// sheets.ProjectionExporter.
type Store struct {
	mu        sync.Mutex
	now       func() time.Time
	states    map[string]core.WizardState
	scenarios map[string]core.Scenario
	reports   map[string]core.Report
	snapshots map[snapshotKey]core.MarketSnapshot
	exports   []Export
}

// Export is one recorded ExportProjection call.
type Export struct {
	SessionID string
	Rows      int
}

func New() *Store {
	return &Store{
		now:       time.Now,
		states:    map[string]core.WizardState{},
		scenarios: map[string]core.Scenario{},
		reports:   map[string]core.Report{},
		snapshots: map[snapshotKey]core.MarketSnapshot{},
	}
}

// WithClock replaces the clock used for timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) LoadState(_ context.Context, sessionID string) (core.WizardState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[sessionID]
	if !ok {
		return core.WizardState{}, core.ErrNotFound
	}
	return st, nil
}

func (s *Store) SaveState(_ context.Context, st core.WizardState) error {
	if st.SessionID == "" {
		return core.ErrEmptySession
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = s.now()
	}
	if prev, ok := s.states[st.SessionID]; ok && !prev.CreatedAt.IsZero() {
		st.CreatedAt = prev.CreatedAt
	} else if st.CreatedAt.IsZero() {
		st.CreatedAt = st.UpdatedAt
	}
	s.states[st.SessionID] = st
	return nil
}

func (s *Store) DeleteState(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, sessionID)
	return nil
}

func (s *Store) SaveScenario(_ context.Context, sc core.Scenario) error {
	if err := sc.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sc.CreatedAt.IsZero() {
		sc.CreatedAt = s.now()
	}
	s.scenarios[sc.ID] = sc
	return nil
}

// ListScenarios returns the session's scenarios, newest first.
func (s *Store) ListScenarios(_ context.Context, sessionID string) ([]core.Scenario, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Scenario
	for _, sc := range s.scenarios {
		if sc.SessionID == sessionID {
			out = append(out, sc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) GetScenario(_ context.Context, sessionID, id string) (core.Scenario, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.scenarios[id]
	if !ok || sc.SessionID != sessionID {
		return core.Scenario{}, core.ErrNotFound
	}
	return sc, nil
}

func (s *Store) DeleteScenario(_ context.Context, sessionID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.scenarios[id]
	if !ok || sc.SessionID != sessionID {
		return core.ErrNotFound
	}
	delete(s.scenarios, id)
	return nil
}

func (s *Store) CreateReport(_ context.Context, r core.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reports[r.ID]; ok {
		return fmt.Errorf("report %s already exists", r.ID)
	}
	if r.Status == "" {
		r.Status = core.ReportPending
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	r.UpdatedAt = r.CreatedAt
	s.reports[r.ID] = r
	return nil
}

func (s *Store) GetReport(_ context.Context, id string) (core.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return core.Report{}, core.ErrNotFound
	}
	return r, nil
}

// MarkReportProcessing claims a pending report. Reports in any other status
// return core.ErrReportClaimed.
func (s *Store) MarkReportProcessing(_ context.Context, id string) (core.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return core.Report{}, core.ErrNotFound
	}
	if r.Status != core.ReportPending {
		return core.Report{}, core.ErrReportClaimed
	}
	r.Status = core.ReportProcessing
	r.Attempts++
	r.UpdatedAt = s.now()
	s.reports[id] = r
	return r, nil
}

func (s *Store) CompleteReport(_ context.Context, id string, pdf []byte, sheetsRef string) error {
	_, err := s.updateReport(id, func(r *core.Report) {
		r.Status = core.ReportReady
		r.PDF = append([]byte(nil), pdf...)
		r.SheetsRef = sheetsRef
		r.Error = ""
	})
	return err
}

func (s *Store) FailReport(_ context.Context, id, reason string, retry bool) error {
	_, err := s.updateReport(id, func(r *core.Report) {
		r.Status = core.ReportFailed
		if retry {
			r.Status = core.ReportPending
		}
		r.Error = reason
	})
	return err
}

func (s *Store) updateReport(id string, fn func(r *core.Report)) (core.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return core.Report{}, core.ErrNotFound
	}
	fn(&r)
	r.UpdatedAt = s.now()
	s.reports[id] = r
	return r, nil
}

// PendingReports returns up to limit pending reports, oldest first.
func (s *Store) PendingReports(_ context.Context, limit int) ([]core.Report, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Report
	for _, r := range s.reports {
		if r.Status == core.ReportPending {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ResetStaleReports(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, r := range s.reports {
		if r.Status == core.ReportProcessing && r.UpdatedAt.Before(olderThan) {
			r.Status = core.ReportPending
			r.UpdatedAt = s.now()
			s.reports[id] = r
			n++
		}
	}
	return n, nil
}

func (s *Store) SaveSnapshot(_ context.Context, snap core.MarketSnapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.FetchedAt.IsZero() {
		snap.FetchedAt = s.now()
	}
	s.snapshots[snapshotKey{snap.Kind, snap.Key}] = snap
	return nil
}

func (s *Store) LatestSnapshot(_ context.Context, kind core.SnapshotKind, key string) (core.MarketSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[snapshotKey{kind, key}]
	if !ok {
		return core.MarketSnapshot{}, core.ErrNotFound
	}
	return snap, nil
}

// ExportProjection records the export and returns a synthetic reference.
func (s *Store) ExportProjection(_ context.Context, sessionID string, r calc.Results) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exports = append(s.exports, Export{SessionID: sessionID, Rows: len(r.Timeline())})
	return fmt.Sprintf("mem:%d", len(s.exports)), nil
}

// Exports returns the recorded exports in call order.
func (s *Store) Exports() []Export {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Export(nil), s.exports...)
}
