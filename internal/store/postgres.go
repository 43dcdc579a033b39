package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/flowlisa/internal/db"
	"github.com/sells-group/flowlisa/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := db.Retry(ctx, "postgres: ping", db.DefaultRetryConfig(), pool.Ping); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	params     JSONB NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	skipped    JSONB,
	error      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_units (
	run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	unit_id  INTEGER NOT NULL,
	code     TEXT NOT NULL DEFAULT '',
	name     TEXT NOT NULL DEFAULT '',
	centroid BYTEA NOT NULL,
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
	zpay         DOUBLE PRECISION NOT NULL,
	zpop         DOUBLE PRECISION NOT NULL,
	pay_lag      DOUBLE PRECISION NOT NULL,
	pop_lag      DOUBLE PRECISION NOT NULL,
	bifl_pay     DOUBLE PRECISION,
	bifl_pop     DOUBLE PRECISION,
	bifl_pay_sig DOUBLE PRECISION,
	bifl_pop_sig DOUBLE PRECISION,
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
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, params model.RunParams) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	paramsJSON, skippedJSON, err := marshalRun(params, nil)
	if err != nil {
		return nil, err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, params, status, skipped, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, paramsJSON, string(model.RunStatusRunning), skippedJSON, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Params:    params,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, skipped []model.SkippedK, runErr string) error {
	_, skippedJSON, err := marshalRun(model.RunParams{}, skipped)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, skipped = $2, error = $3, updated_at = $4 WHERE id = $5`,
		string(status), skippedJSON, runErr, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, params, status, skipped, error, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	)
	r, err := scanPostgresRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, params, status, skipped, error, created_at, updated_at FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPostgresRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func scanPostgresRun(row scannable) (*model.Run, error) {
	var r model.Run
	var paramsJSON, skippedJSON []byte
	if err := row.Scan(&r.ID, &paramsJSON, &r.Status, &skippedJSON, &r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if err := unmarshalRun(&r, paramsJSON, skippedJSON); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) SaveUnits(ctx context.Context, runID string, units []model.SpatialUnit) error {
	rows, err := unitRows(runID, units)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM run_units WHERE run_id = $1`, runID); err != nil {
		return eris.Wrapf(err, "postgres: clear units for run %s", runID)
	}
	_, err = db.CopyFrom(ctx, s.pool, "run_units", unitColumns, rows)
	return err
}

func (s *PostgresStore) SaveKResult(ctx context.Context, runID string, r *model.KResult) error {
	rows := make([][]any, len(r.Flows))
	for i, f := range r.Flows {
		rows[i] = flowRow(runID, r, f)
	}
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM flow_results WHERE run_id = $1 AND period = $2 AND k = $3`,
		runID, r.Period, r.K,
	); err != nil {
		return eris.Wrapf(err, "postgres: clear flow results for run %s k=%d", runID, r.K)
	}
	_, err := db.CopyFrom(ctx, s.pool, "flow_results", flowColumns, rows)
	return err
}

func (s *PostgresStore) SaveSensitivity(ctx context.Context, runID string, records []model.SensitivityRecord) error {
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "sensitivity",
		Columns:      sensitivityColumns,
		ConflictKeys: []string{"run_id", "period", "k", "label"},
	}, sensitivityRows(runID, records))
	return err
}

func (s *PostgresStore) GetUnits(ctx context.Context, runID string) ([]model.SpatialUnit, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT unit_id, code, name, centroid FROM run_units WHERE run_id = $1 ORDER BY unit_id`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get units")
	}
	defer rows.Close()

	var units []model.SpatialUnit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, eris.Wrap(rows.Err(), "postgres: get units iterate")
}

func (s *PostgresStore) GetFlowResults(ctx context.Context, runID, period string, k int) ([]model.FlowResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+selectFlowColumns+` FROM flow_results
		 WHERE run_id = $1 AND period = $2 AND k = $3 ORDER BY flow_index`,
		runID, period, k,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get flow results")
	}
	defer rows.Close()

	var out []model.FlowResult
	for rows.Next() {
		f, err := scanFlow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "postgres: get flow results iterate")
}

func (s *PostgresStore) GetSensitivity(ctx context.Context, runID string) ([]model.SensitivityRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT period, k, label, count FROM sensitivity WHERE run_id = $1`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get sensitivity")
	}
	defer rows.Close()

	var out []model.SensitivityRecord
	for rows.Next() {
		r, err := scanSensitivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: get sensitivity iterate")
	}
	sortRecords(out)
	return out, nil
}
