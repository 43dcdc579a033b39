package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/flowlisa/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas below are per-connection.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	params     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	skipped    TEXT,
	error      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS run_units (
	run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	unit_id  INTEGER NOT NULL,
	code     TEXT NOT NULL DEFAULT '',
	name     TEXT NOT NULL DEFAULT '',
	centroid BLOB NOT NULL,
	PRIMARY KEY (run_id, unit_id)
);

CREATE TABLE IF NOT EXISTS flow_results (
	run_id       TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	period       TEXT NOT NULL,
	k            INTEGER NOT NULL,
	flow_index   INTEGER NOT NULL,
	origin       INTEGER NOT NULL,
	destination  INTEGER NOT NULL,
	origin_code  TEXT NOT NULL DEFAULT '',
	dest_code    TEXT NOT NULL DEFAULT '',
	zpay         REAL NOT NULL,
	zpop         REAL NOT NULL,
	pay_lag      REAL NOT NULL,
	pop_lag      REAL NOT NULL,
	bifl_pay     REAL,
	bifl_pop     REAL,
	bifl_pay_sig REAL,
	bifl_pop_sig REAL,
	value_p      TEXT NOT NULL,
	value_p2     TEXT NOT NULL,
	value_y      TEXT NOT NULL,
	value_y2     TEXT NOT NULL,
	PRIMARY KEY (run_id, period, k, flow_index)
);

CREATE TABLE IF NOT EXISTS sensitivity (
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	period TEXT NOT NULL,
	k      INTEGER NOT NULL,
	label  TEXT NOT NULL,
	count  INTEGER NOT NULL,
	PRIMARY KEY (run_id, period, k, label)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, params model.RunParams) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	paramsJSON, skippedJSON, err := marshalRun(params, nil)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, params, status, skipped, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, string(paramsJSON), string(model.RunStatusRunning), string(skippedJSON), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Params:    params,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, skipped []model.SkippedK, runErr string) error {
	_, skippedJSON, err := marshalRun(model.RunParams{}, skipped)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, skipped = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), string(skippedJSON), runErr, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, params, status, skipped, error, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, params, status, skipped, error, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) SaveUnits(ctx context.Context, runID string, units []model.SpatialUnit) error {
	rows, err := unitRows(runID, units)
	if err != nil {
		return err
	}
	return s.replace(ctx, "run_units", unitColumns, `DELETE FROM run_units WHERE run_id = ?`, []any{runID}, rows)
}

func (s *SQLiteStore) SaveKResult(ctx context.Context, runID string, r *model.KResult) error {
	rows := make([][]any, len(r.Flows))
	for i, f := range r.Flows {
		rows[i] = flowRow(runID, r, f)
	}
	return s.replace(ctx, "flow_results", flowColumns,
		`DELETE FROM flow_results WHERE run_id = ? AND period = ? AND k = ?`, []any{runID, r.Period, r.K}, rows)
}

func (s *SQLiteStore) SaveSensitivity(ctx context.Context, runID string, records []model.SensitivityRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin sensitivity")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO sensitivity (run_id, period, k, label, count) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (run_id, period, k, label) DO UPDATE SET count = excluded.count`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare sensitivity")
	}
	defer stmt.Close() //nolint:errcheck

	for _, row := range sensitivityRows(runID, records) {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return eris.Wrapf(err, "sqlite: upsert sensitivity for run %s", runID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit sensitivity")
}

// replace deletes the rows matched by del and inserts rows in one transaction.
func (s *SQLiteStore) replace(ctx context.Context, table string, columns []string, del string, delArgs []any, rows [][]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrapf(err, "sqlite: begin %s", table)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, del, delArgs...); err != nil {
		return eris.Wrapf(err, "sqlite: clear %s", table)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO `+table+` (`+strings.Join(columns, ", ")+`) VALUES (`+placeholders+`)`)
	if err != nil {
		return eris.Wrapf(err, "sqlite: prepare %s", table)
	}
	defer stmt.Close() //nolint:errcheck

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return eris.Wrapf(err, "sqlite: insert %s", table)
		}
	}
	return eris.Wrapf(tx.Commit(), "sqlite: commit %s", table)
}

func (s *SQLiteStore) GetUnits(ctx context.Context, runID string) ([]model.SpatialUnit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT unit_id, code, name, centroid FROM run_units WHERE run_id = ? ORDER BY unit_id`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get units")
	}
	defer rows.Close() //nolint:errcheck

	var units []model.SpatialUnit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, eris.Wrap(rows.Err(), "sqlite: get units iterate")
}

func (s *SQLiteStore) GetFlowResults(ctx context.Context, runID, period string, k int) ([]model.FlowResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectFlowColumns+` FROM flow_results
		 WHERE run_id = ? AND period = ? AND k = ? ORDER BY flow_index`,
		runID, period, k,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get flow results")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.FlowResult
	for rows.Next() {
		f, err := scanFlow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: get flow results iterate")
}

func (s *SQLiteStore) GetSensitivity(ctx context.Context, runID string) ([]model.SensitivityRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT period, k, label, count FROM sensitivity WHERE run_id = ?`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get sensitivity")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.SensitivityRecord
	for rows.Next() {
		r, err := scanSensitivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: get sensitivity iterate")
	}
	sortRecords(out)
	return out, nil
}

// helpers

func checkRowsAffected(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var paramsJSON string
	var skippedJSON sql.NullString

	err := row.Scan(&r.ID, &paramsJSON, &r.Status, &skippedJSON, &r.Error, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "run")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if err := unmarshalRun(&r, []byte(paramsJSON), []byte(skippedJSON.String)); err != nil {
		return nil, err
	}
	return &r, nil
}
