// Package store persists analysis runs, their per-k flow results and the
// sensitivity aggregate for later inspection through the CLI and HTTP API.
package store

import (
	"cmp"
	"context"
	"slices"

	"github.com/rotisserie/eris"

	"github.com/sells-group/flowlisa/internal/model"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = eris.New("store: not found")

// Drivers accepted by Open.
const (
	DriverNone     = "none"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for sensitivity runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, params model.RunParams) (*model.Run, error)
	FinishRun(ctx context.Context, runID string, status model.RunStatus, skipped []model.SkippedK, runErr string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Results
	SaveUnits(ctx context.Context, runID string, units []model.SpatialUnit) error
	SaveKResult(ctx context.Context, runID string, r *model.KResult) error
	SaveSensitivity(ctx context.Context, runID string, records []model.SensitivityRecord) error
	GetUnits(ctx context.Context, runID string) ([]model.SpatialUnit, error)
	GetFlowResults(ctx context.Context, runID, period string, k int) ([]model.FlowResult, error)
	GetSensitivity(ctx context.Context, runID string) ([]model.SensitivityRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open connects to the configured backend. The none driver returns a nil Store.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "", DriverNone:
		return nil, nil
	case DriverSQLite:
		return NewSQLite(dsn)
	case DriverPostgres:
		return NewPostgres(ctx, dsn, nil)
	}
	return nil, eris.Errorf("store: unknown driver %q", driver)
}

func labelRank(l model.ClusterLabel) int {
	return slices.Index(model.Labels, l)
}

func sortRecords(recs []model.SensitivityRecord) {
	slices.SortStableFunc(recs, func(a, b model.SensitivityRecord) int {
		return cmp.Or(
			cmp.Compare(a.Period, b.Period),
			cmp.Compare(a.K, b.K),
			cmp.Compare(labelRank(a.Label), labelRank(b.Label)),
		)
	})
}
