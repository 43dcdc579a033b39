package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/flowlisa/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS runs`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "running", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateRun(context.Background(), testParams())
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, params, status, skipped, error, created_at, updated_at FROM runs WHERE id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FinishRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET status = \$1`).
		WithArgs("complete", pgxmock.AnyArg(), "", pgxmock.AnyArg(), "gone").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.FinishRun(context.Background(), "gone", model.RunStatusComplete, nil, "")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_BuildsArgs(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM runs WHERE true AND status = \$1 ORDER BY created_at DESC LIMIT \$2 OFFSET \$3`).
		WithArgs("failed", 10, 20).
		WillReturnRows(pgxmock.NewRows([]string{"id", "params", "status", "skipped", "error", "created_at", "updated_at"}))

	runs, err := s.ListRuns(context.Background(), RunFilter{Status: model.RunStatusFailed, Limit: 10, Offset: 20})
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveKResult_CopiesRows(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	kr := testKResult()

	mock.ExpectExec(`DELETE FROM flow_results WHERE run_id = \$1 AND period = \$2 AND k = \$3`).
		WithArgs("run-1", "2022_01", 2).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"flow_results"}, flowColumns).WillReturnResult(2)

	require.NoError(t, s.SaveKResult(context.Background(), "run-1", kr))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveUnits_CopyError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM run_units`).
		WithArgs("run-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"run_units"}, unitColumns).WillReturnError(fmt.Errorf("connection reset"))

	err := s.SaveUnits(context.Background(), "run-1", []model.SpatialUnit{{ID: 1, X: 1, Y: 2}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run_units")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveSensitivity_Upserts(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_sensitivity"`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_sensitivity"}, sensitivityColumns).WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO "sensitivity" .* ON CONFLICT \("run_id", "period", "k", "label"\)`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	err := s.SaveSensitivity(context.Background(), "run-1", []model.SensitivityRecord{
		{Period: "2022_01", K: 1, Label: model.LabelHH, Count: 3},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSensitivity_Sorted(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT period, k, label, count FROM sensitivity WHERE run_id = \$1`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"period", "k", "label", "count"}).
			AddRow("2022_01", 2, "HH", 5).
			AddRow("2022_01", 1, "NS", 7).
			AddRow("2022_01", 1, "HL", 2))

	got, err := s.GetSensitivity(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, []model.SensitivityRecord{
		{Period: "2022_01", K: 1, Label: model.LabelHL, Count: 2},
		{Period: "2022_01", K: 1, Label: model.LabelNS, Count: 7},
		{Period: "2022_01", K: 2, Label: model.LabelHH, Count: 5},
	}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSensitivity_BadLabel(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM sensitivity`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"period", "k", "label", "count"}).
			AddRow("2022_01", 1, "XX", 1))

	_, err := s.GetSensitivity(context.Background(), "run-1")
	assert.ErrorContains(t, err, "unknown cluster label")
}

func TestPostgresStore_Close(t *testing.T) {
	called := false
	s := &PostgresStore{closeFn: func() { called = true }}
	require.NoError(t, s.Close())
	assert.True(t, called)
}
