package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"retireplan/internal/core"
)

const (
	sessionsTable  = "wizard_sessions"
	scenariosTable = "scenarios"
	reportsTable   = "reports"
	snapshotsTable = "market_snapshots"
)

type stateRow struct {
	SessionID  string `db:"session_id"`
	Step       int    `db:"step"`
	Completed  bool   `db:"completed"`
	InputsJSON string `db:"inputs_json"`
	CreatedAt  int64  `db:"created_at"`
	UpdatedAt  int64  `db:"updated_at"`
}

type scenarioRow struct {
	ID         string `db:"id"`
	SessionID  string `db:"session_id"`
	Name       string `db:"name"`
	InputsJSON string `db:"inputs_json"`
	CreatedAt  int64  `db:"created_at"`
}

type reportRow struct {
	ID        string `db:"id"`
	SessionID string `db:"session_id"`
	Status    string `db:"status"`
	Attempts  int    `db:"attempts"`
	LastError string `db:"last_error"`
	SheetsRef string `db:"sheets_ref"`
	PDF       []byte `db:"pdf"`
	CreatedAt int64  `db:"created_at"`
	UpdatedAt int64  `db:"updated_at"`
}

type snapshotRow struct {
	Kind      string  `db:"kind"`
	Key       string  `db:"key"`
	Value     float64 `db:"value"`
	Currency  string  `db:"currency"`
	FetchedAt int64   `db:"fetched_at"`
}

func unix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func encodeInputs(in core.Inputs) (string, error) {
	b, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("marshal inputs: %w", err)
	}
	return string(b), nil
}

// decodeInputs starts from the defaults so rows written before a field
// existed still load with a sensible value.
func decodeInputs(raw string) (core.Inputs, error) {
	in := core.DefaultInputs()
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return core.Inputs{}, fmt.Errorf("unmarshal inputs: %w", err)
	}
	return in.Normalize(), nil
}

func (r stateRow) toDomain() (core.WizardState, error) {
	in, err := decodeInputs(r.InputsJSON)
	if err != nil {
		return core.WizardState{}, err
	}
	return core.WizardState{
		SessionID: r.SessionID,
		Step:      core.WizardStep(r.Step),
		Inputs:    in,
		Completed: r.Completed,
		CreatedAt: fromUnix(r.CreatedAt),
		UpdatedAt: fromUnix(r.UpdatedAt),
	}, nil
}

func (r scenarioRow) toDomain() (core.Scenario, error) {
	in, err := decodeInputs(r.InputsJSON)
	if err != nil {
		return core.Scenario{}, err
	}
	return core.Scenario{
		ID:        r.ID,
		SessionID: r.SessionID,
		Name:      r.Name,
		Inputs:    in,
		CreatedAt: fromUnix(r.CreatedAt),
	}, nil
}

func (r reportRow) toDomain() core.Report {
	return core.Report{
		ID:        r.ID,
		SessionID: r.SessionID,
		Status:    core.ReportStatus(r.Status),
		Attempts:  r.Attempts,
		Error:     r.LastError,
		SheetsRef: r.SheetsRef,
		PDF:       r.PDF,
		CreatedAt: fromUnix(r.CreatedAt),
		UpdatedAt: fromUnix(r.UpdatedAt),
	}
}

func (r snapshotRow) toDomain() core.MarketSnapshot {
	return core.MarketSnapshot{
		Kind:      core.SnapshotKind(r.Kind),
		Key:       r.Key,
		Value:     r.Value,
		Currency:  r.Currency,
		FetchedAt: fromUnix(r.FetchedAt),
	}
}
