package model

import "time"

// RunStatus represents the current state of an analysis run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// RunParams records the inputs that determine a run's results.
type RunParams struct {
	Periods   []string `json:"periods" yaml:"periods"`
	KMin      int      `json:"k_min" yaml:"k_min"`
	KMax      int      `json:"k_max" yaml:"k_max"`
	Threshold float64  `json:"threshold" yaml:"threshold"`
	Branch    Branch   `json:"branch" yaml:"branch"`
	UnitsPath string   `json:"units_path" yaml:"units_path"`
	Units     int      `json:"units" yaml:"units"`
}

// Run is a single sensitivity analysis execution.
type Run struct {
	ID        string     `json:"id"`
	Params    RunParams  `json:"params"`
	Status    RunStatus  `json:"status"`
	Skipped   []SkippedK `json:"skipped,omitempty"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
