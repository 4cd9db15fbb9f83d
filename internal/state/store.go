// Package state records generate runs and their per-dashboard outcomes in a
// local SQLite database. The history is informational only and is never read
// back during generation.
package state

import (
	"context"
	"errors"
	"time"
)

// ErrRunNotFound is returned when a run id does not exist.
var ErrRunNotFound = errors.New("run not found")

// RunStatus is the lifecycle state of a run.
type RunStatus string

// Run statuses.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusAborted   RunStatus = "aborted"
)

// ResultStatus is the outcome of one dashboard within a run.
type ResultStatus string

// Dashboard outcomes.
const (
	ResultWritten ResultStatus = "written"
	ResultDryRun  ResultStatus = "dry_run"
	ResultFailed  ResultStatus = "failed"
)

// Run is one invocation of generate.
type Run struct {
	ID          string
	Status      RunStatus
	Policy      string
	OutputDir   string
	DryRun      bool
	Requested   int
	Written     int
	Failed      int
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// Duration returns how long the run took, or zero while it is running.
func (r *Run) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// RunOptions describes a run when it starts.
type RunOptions struct {
	Policy    string
	OutputDir string
	DryRun    bool
	Requested int
}

// DashboardResult is the recorded outcome for one dashboard.
type DashboardResult struct {
	RunID       string
	DashboardID string
	Status      ResultStatus
	Title       string
	File        string
	Tables      []string
	QueryID     string
	Error       string
}

// Store is the run history.
type Store interface {
	Open(path string) error
	Close() error
	Migrate(ctx context.Context) error

	CreateRun(ctx context.Context, opts RunOptions) (*Run, error)
	RecordResults(ctx context.Context, runID string, results []DashboardResult) error
	CompleteRun(ctx context.Context, id string, status RunStatus, errMsg string) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)
	ListResults(ctx context.Context, runID string) ([]DashboardResult, error)
}

var _ Store = (*SQLiteStore)(nil)
