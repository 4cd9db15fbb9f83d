package state

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/lookerexp/internal/testutil"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := NewSQLiteStore(testutil.NewTestLogger(t))
	require.NoError(t, store.Open(MemoryPath))
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_OpenClose(t *testing.T) {
	store := NewSQLiteStore(nil)
	require.NoError(t, store.Open(MemoryPath))
	require.NoError(t, store.Close())
	require.NoError(t, store.Close(), "close is idempotent")
}

func TestSQLiteStore_NotOpened(t *testing.T) {
	store := NewSQLiteStore(nil)
	ctx := context.Background()

	assert.ErrorIs(t, store.Migrate(ctx), errNotOpen)
	_, err := store.CreateRun(ctx, RunOptions{})
	assert.ErrorIs(t, err, errNotOpen)
	_, err = store.ListRuns(ctx, 10)
	assert.ErrorIs(t, err, errNotOpen)
}

func TestSQLiteStore_Migrate(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	version, err := store.MigrationVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)

	// Running again is a no-op.
	require.NoError(t, store.Migrate(ctx))

	for _, table := range []string{"runs", "dashboard_results"} {
		rows, err := store.db.Query("SELECT 1 FROM " + table + " LIMIT 1")
		require.NoError(t, err, "table %s", table)
		_ = rows.Close()
	}
}

func TestSQLiteStore_FileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.db")
	ctx := context.Background()

	store := NewSQLiteStore(nil)
	require.NoError(t, store.Open(path))
	require.NoError(t, store.Migrate(ctx))
	run, err := store.CreateRun(ctx, RunOptions{Policy: "skip"})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened := NewSQLiteStore(nil)
	require.NoError(t, reopened.Open(path))
	defer func() { _ = reopened.Close() }()
	require.NoError(t, reopened.Migrate(ctx))

	got, err := reopened.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "skip", got.Policy)
	assert.Equal(t, path, reopened.Path())
}

func TestSQLiteStore_RunLifecycle(t *testing.T) {
	tests := []struct {
		name    string
		results []DashboardResult
		status  RunStatus
		errMsg  string
		written int
		failed  int
	}{
		{
			name:   "no dashboards",
			status: RunStatusCompleted,
		},
		{
			name: "all written",
			results: []DashboardResult{
				{DashboardID: "1", Status: ResultWritten, File: "a_looker_1.yaml", Tables: []string{"db.s.a"}},
				{DashboardID: "2", Status: ResultWritten, File: "b_looker_2.yaml"},
			},
			status:  RunStatusCompleted,
			written: 2,
		},
		{
			name: "partial failure",
			results: []DashboardResult{
				{DashboardID: "1", Status: ResultWritten},
				{DashboardID: "2", Status: ResultFailed, QueryID: "11", Error: "boom"},
			},
			status:  RunStatusFailed,
			errMsg:  "1 dashboard failed",
			written: 1,
			failed:  1,
		},
		{
			name: "dry run",
			results: []DashboardResult{
				{DashboardID: "1", Status: ResultDryRun},
			},
			status:  RunStatusCompleted,
			written: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := setupTestStore(t)
			ctx := context.Background()

			run, err := store.CreateRun(ctx, RunOptions{Policy: "skip", OutputDir: "yaml_files", Requested: len(tt.results)})
			require.NoError(t, err)
			assert.NotEmpty(t, run.ID)
			assert.Equal(t, RunStatusRunning, run.Status)
			assert.Zero(t, run.Duration())

			require.NoError(t, store.RecordResults(ctx, run.ID, tt.results))
			require.NoError(t, store.CompleteRun(ctx, run.ID, tt.status, tt.errMsg))

			got, err := store.GetRun(ctx, run.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.status, got.Status)
			assert.Equal(t, tt.errMsg, got.Error)
			assert.Equal(t, tt.written, got.Written)
			assert.Equal(t, tt.failed, got.Failed)
			assert.Equal(t, len(tt.results), got.Requested)
			require.NotNil(t, got.CompletedAt)
			assert.GreaterOrEqual(t, got.Duration().Nanoseconds(), int64(0))
		})
	}
}

func TestSQLiteStore_GetRunNotFound(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	err = store.CompleteRun(ctx, "missing", RunStatusCompleted, "")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestSQLiteStore_ListRuns(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		run, err := store.CreateRun(ctx, RunOptions{Requested: i})
		require.NoError(t, err)
		ids = append(ids, run.ID)
	}

	runs, err := store.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[1], runs[1].ID)

	all, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSQLiteStore_ListResults(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	run, err := store.CreateRun(ctx, RunOptions{})
	require.NoError(t, err)

	require.NoError(t, store.RecordResults(ctx, run.ID, []DashboardResult{
		{DashboardID: "10", Status: ResultWritten, Title: "Ten", Tables: []string{"db.s.a", "db.s.b"}},
		{DashboardID: "9", Status: ResultFailed, QueryID: "3", Error: "query 3: boom"},
	}))
	// Re-recording replaces the earlier outcome.
	require.NoError(t, store.RecordResults(ctx, run.ID, []DashboardResult{
		{DashboardID: "9", Status: ResultWritten, Title: "Nine"},
	}))

	results, err := store.ListResults(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "9", results[0].DashboardID)
	assert.Equal(t, ResultWritten, results[0].Status)
	assert.Nil(t, results[0].Tables)

	assert.Equal(t, "10", results[1].DashboardID)
	assert.Equal(t, []string{"db.s.a", "db.s.b"}, results[1].Tables)
	assert.Equal(t, run.ID, results[1].RunID)
}

func TestSQLiteStore_RecordResultsUnknownRun(t *testing.T) {
	store := setupTestStore(t)
	err := store.RecordResults(context.Background(), "missing", []DashboardResult{{DashboardID: "1", Status: ResultWritten}})
	assert.Error(t, err, "foreign key rejects unknown run")
}
