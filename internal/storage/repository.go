package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"

	"retireplan/internal/core"

	_ "modernc.org/sqlite"
)

// builder is the part of goqu used here. Both *goqu.Database and
// *goqu.TxDatabase satisfy it.
type builder interface {
	From(table ...interface{}) *goqu.SelectDataset
	Insert(table interface{}) *goqu.InsertDataset
	Update(table interface{}) *goqu.UpdateDataset
	Delete(table interface{}) *goqu.DeleteDataset
}

// SQLiteRepository implements every sheets store port on one SQLite file.
type SQLiteRepository struct {
	db  *sql.DB
	qb  *goqu.Database
	now func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows one writer; a single connection serialises access.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Debug("SQLite schema ready", "db_path", dbPath, "version", version)

	return &SQLiteRepository{
		db:  db,
		qb:  goqu.New("sqlite3", db),
		now: time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database answers. Used by readiness checks.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// withTx runs fn in a transaction, committing when fn returns nil.
func (r *SQLiteRepository) withTx(ctx context.Context, fn func(b builder) error) error {
	tx, err := r.qb.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	return tx.Wrap(func() error { return fn(tx) })
}

// upsert updates the row matched by where, inserting insertRec when none matched.
func upsert(ctx context.Context, b builder, table string, where goqu.Ex, updateRec, insertRec goqu.Record) error {
	res, err := b.Update(table).Set(updateRec).Where(where).Prepared(true).Executor().ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected on %s: %w", table, err)
	}
	if n > 0 {
		return nil
	}
	if _, err := b.Insert(table).Rows(insertRec).Prepared(true).Executor().ExecContext(ctx); err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

func affectedOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// LoadState implements sheets.StateStore
func (r *SQLiteRepository) LoadState(ctx context.Context, sessionID string) (core.WizardState, error) {
	var row stateRow
	found, err := r.qb.From(sessionsTable).
		Where(goqu.Ex{"session_id": sessionID}).
		Prepared(true).
		ScanStructContext(ctx, &row)
	if err != nil {
		return core.WizardState{}, fmt.Errorf("load wizard state: %w", err)
	}
	if !found {
		return core.WizardState{}, core.ErrNotFound
	}
	return row.toDomain()
}

// SaveState implements sheets.StateStore
func (r *SQLiteRepository) SaveState(ctx context.Context, st core.WizardState) error {
	if st.SessionID == "" {
		return core.ErrEmptySession
	}
	raw, err := encodeInputs(st.Inputs)
	if err != nil {
		return err
	}
	updated := st.UpdatedAt
	if updated.IsZero() {
		updated = r.now()
	}
	created := st.CreatedAt
	if created.IsZero() {
		created = updated
	}

	rec := goqu.Record{
		"step":        int(st.Step),
		"completed":   st.Completed,
		"inputs_json": raw,
		"updated_at":  unix(updated),
	}
	ins := goqu.Record{
		"session_id":  st.SessionID,
		"step":        int(st.Step),
		"completed":   st.Completed,
		"inputs_json": raw,
		"created_at":  unix(created),
		"updated_at":  unix(updated),
	}

	err = r.withTx(ctx, func(b builder) error {
		return upsert(ctx, b, sessionsTable, goqu.Ex{"session_id": st.SessionID}, rec, ins)
	})
	if err != nil {
		return fmt.Errorf("save wizard state: %w", err)
	}

	slog.DebugContext(ctx, "Wizard state saved",
		"session_id", st.SessionID,
		"step", st.Step.String(),
		"completed", st.Completed)
	return nil
}

// DeleteState implements sheets.StateStore. Deleting a missing session is not an error.
func (r *SQLiteRepository) DeleteState(ctx context.Context, sessionID string) error {
	_, err := r.qb.Delete(sessionsTable).
		Where(goqu.Ex{"session_id": sessionID}).
		Prepared(true).
		Executor().ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("delete wizard state: %w", err)
	}
	return nil
}

// SaveScenario implements sheets.ScenarioStore
func (r *SQLiteRepository) SaveScenario(ctx context.Context, sc core.Scenario) error {
	if err := sc.Validate(); err != nil {
		return err
	}
	raw, err := encodeInputs(sc.Inputs)
	if err != nil {
		return err
	}
	created := sc.CreatedAt
	if created.IsZero() {
		created = r.now()
	}

	_, err = r.qb.Insert(scenariosTable).Rows(goqu.Record{
		"id":          sc.ID,
		"session_id":  sc.SessionID,
		"name":        sc.Name,
		"inputs_json": raw,
		"created_at":  unix(created),
	}).Prepared(true).Executor().ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("save scenario: %w", err)
	}

	slog.InfoContext(ctx, "Scenario saved to SQLite",
		"scenario_id", sc.ID,
		"session_id", sc.SessionID,
		"name", sc.Name)
	return nil
}

// ListScenarios implements sheets.ScenarioStore
func (r *SQLiteRepository) ListScenarios(ctx context.Context, sessionID string) ([]core.Scenario, error) {
	var rows []scenarioRow
	err := r.qb.From(scenariosTable).
		Where(goqu.Ex{"session_id": sessionID}).
		Order(goqu.C("created_at").Desc(), goqu.C("id").Desc()).
		Prepared(true).
		ScanStructsContext(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}

	out := make([]core.Scenario, 0, len(rows))
	for _, row := range rows {
		sc, err := row.toDomain()
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", row.ID, err)
		}
		out = append(out, sc)
	}
	return out, nil
}

// GetScenario implements sheets.ScenarioStore
func (r *SQLiteRepository) GetScenario(ctx context.Context, sessionID, id string) (core.Scenario, error) {
	var row scenarioRow
	found, err := r.qb.From(scenariosTable).
		Where(goqu.Ex{"session_id": sessionID, "id": id}).
		Prepared(true).
		ScanStructContext(ctx, &row)
	if err != nil {
		return core.Scenario{}, fmt.Errorf("get scenario: %w", err)
	}
	if !found {
		return core.Scenario{}, core.ErrNotFound
	}
	return row.toDomain()
}

// DeleteScenario implements sheets.ScenarioStore
func (r *SQLiteRepository) DeleteScenario(ctx context.Context, sessionID, id string) error {
	res, err := r.qb.Delete(scenariosTable).
		Where(goqu.Ex{"session_id": sessionID, "id": id}).
		Prepared(true).
		Executor().ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("delete scenario: %w", err)
	}
	return affectedOrNotFound(res)
}

// CreateReport implements sheets.ReportStore
func (r *SQLiteRepository) CreateReport(ctx context.Context, rep core.Report) error {
	now := r.now()
	created := rep.CreatedAt
	if created.IsZero() {
		created = now
	}
	status := rep.Status
	if status == "" {
		status = core.ReportPending
	}

	_, err := r.qb.Insert(reportsTable).Rows(goqu.Record{
		"id":         rep.ID,
		"session_id": rep.SessionID,
		"status":     string(status),
		"attempts":   rep.Attempts,
		"last_error": rep.Error,
		"sheets_ref": rep.SheetsRef,
		"created_at": unix(created),
		"updated_at": unix(created),
	}).Prepared(true).Executor().ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	return nil
}

// GetReport implements sheets.ReportStore
func (r *SQLiteRepository) GetReport(ctx context.Context, id string) (core.Report, error) {
	return r.getReport(ctx, r.qb, id)
}

func (r *SQLiteRepository) getReport(ctx context.Context, b builder, id string) (core.Report, error) {
	var row reportRow
	found, err := b.From(reportsTable).
		Where(goqu.Ex{"id": id}).
		Prepared(true).
		ScanStructContext(ctx, &row)
	if err != nil {
		return core.Report{}, fmt.Errorf("get report: %w", err)
	}
	if !found {
		return core.Report{}, core.ErrNotFound
	}
	return row.toDomain(), nil
}

// MarkReportProcessing implements sheets.ReportStore
func (r *SQLiteRepository) MarkReportProcessing(ctx context.Context, id string) (core.Report, error) {
	var rep core.Report
	err := r.withTx(ctx, func(b builder) error {
		res, err := b.Update(reportsTable).Set(goqu.Record{
			"status":     string(core.ReportProcessing),
			"attempts":   goqu.L("attempts + 1"),
			"updated_at": unix(r.now()),
		}).Where(goqu.Ex{"id": id, "status": string(core.ReportPending)}).Prepared(true).Executor().ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("mark report processing: %w", err)
		}
		if err := affectedOrNotFound(res); err != nil {
			if !errors.Is(err, core.ErrNotFound) {
				return err
			}
			// the report exists but another consumer holds or finished it
			if _, getErr := r.getReport(ctx, b, id); getErr != nil {
				return getErr
			}
			return core.ErrReportClaimed
		}
		rep, err = r.getReport(ctx, b, id)
		return err
	})
	return rep, err
}

// CompleteReport implements sheets.ReportStore
func (r *SQLiteRepository) CompleteReport(ctx context.Context, id string, pdf []byte, sheetsRef string) error {
	res, err := r.qb.Update(reportsTable).Set(goqu.Record{
		"status":     string(core.ReportReady),
		"pdf":        pdf,
		"sheets_ref": sheetsRef,
		"last_error": "",
		"updated_at": unix(r.now()),
	}).Where(goqu.Ex{"id": id}).Prepared(true).Executor().ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("complete report: %w", err)
	}
	if err := affectedOrNotFound(res); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Report stored", "report_id", id, "bytes", len(pdf))
	return nil
}

// FailReport implements sheets.ReportStore
func (r *SQLiteRepository) FailReport(ctx context.Context, id, reason string, retry bool) error {
	status := core.ReportFailed
	if retry {
		status = core.ReportPending
	}
	res, err := r.qb.Update(reportsTable).Set(goqu.Record{
		"status":     string(status),
		"last_error": reason,
		"updated_at": unix(r.now()),
	}).Where(goqu.Ex{"id": id}).Prepared(true).Executor().ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("fail report: %w", err)
	}
	return affectedOrNotFound(res)
}

// PendingReports implements sheets.ReportStore
func (r *SQLiteRepository) PendingReports(ctx context.Context, limit int) ([]core.Report, error) {
	if limit <= 0 {
		return nil, nil
	}
	var rows []reportRow
	err := r.qb.From(reportsTable).
		Where(goqu.Ex{"status": string(core.ReportPending)}).
		Order(goqu.C("created_at").Asc(), goqu.C("id").Asc()).
		Limit(uint(limit)).
		Prepared(true).
		ScanStructsContext(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("pending reports: %w", err)
	}

	out := make([]core.Report, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// ResetStaleReports implements sheets.ReportStore
func (r *SQLiteRepository) ResetStaleReports(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := r.qb.Update(reportsTable).Set(goqu.Record{
		"status":     string(core.ReportPending),
		"updated_at": unix(r.now()),
	}).Where(
		goqu.C("status").Eq(string(core.ReportProcessing)),
		goqu.C("updated_at").Lt(unix(olderThan)),
	).Prepared(true).Executor().ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("reset stale reports: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		slog.WarnContext(ctx, "Reset stale reports", "count", n)
	}
	return int(n), nil
}

// SaveSnapshot implements sheets.SnapshotStore
func (r *SQLiteRepository) SaveSnapshot(ctx context.Context, s core.MarketSnapshot) error {
	if err := s.Validate(); err != nil {
		return err
	}
	fetched := s.FetchedAt
	if fetched.IsZero() {
		fetched = r.now()
	}

	where := goqu.Ex{"kind": string(s.Kind), "key": s.Key}
	rec := goqu.Record{
		"value":      s.Value,
		"currency":   s.Currency,
		"fetched_at": unix(fetched),
	}
	ins := goqu.Record{
		"kind":       string(s.Kind),
		"key":        s.Key,
		"value":      s.Value,
		"currency":   s.Currency,
		"fetched_at": unix(fetched),
	}
	err := r.withTx(ctx, func(b builder) error {
		return upsert(ctx, b, snapshotsTable, where, rec, ins)
	})
	if err != nil {
		return fmt.Errorf("save market snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot implements sheets.SnapshotStore
func (r *SQLiteRepository) LatestSnapshot(ctx context.Context, kind core.SnapshotKind, key string) (core.MarketSnapshot, error) {
	var row snapshotRow
	found, err := r.qb.From(snapshotsTable).
		Where(goqu.Ex{"kind": string(kind), "key": key}).
		Prepared(true).
		ScanStructContext(ctx, &row)
	if err != nil {
		return core.MarketSnapshot{}, fmt.Errorf("latest market snapshot: %w", err)
	}
	if !found {
		return core.MarketSnapshot{}, core.ErrNotFound
	}
	return row.toDomain(), nil
}
