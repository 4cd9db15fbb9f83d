package state

import (
	"context"
	"fmt"
	"strings"
)

// RecordResults stores dashboard outcomes for a run in one transaction.
// Recording the same dashboard twice replaces the earlier outcome.
func (s *SQLiteStore) RecordResults(ctx context.Context, runID string, results []DashboardResult) error {
	if s.db == nil {
		return errNotOpen
	}
	if len(results) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO dashboard_results
			(run_id, dashboard_id, status, title, file, tables, query_id, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare result insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range results {
		if _, err := stmt.ExecContext(ctx, runID, r.DashboardID, string(r.Status), r.Title,
			r.File, strings.Join(r.Tables, ","), r.QueryID, r.Error); err != nil {
			return fmt.Errorf("failed to record dashboard %s: %w", r.DashboardID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit results: %w", err)
	}
	return nil
}

// ListResults returns the recorded outcomes of a run ordered by dashboard id.
func (s *SQLiteStore) ListResults(ctx context.Context, runID string) ([]DashboardResult, error) {
	if s.db == nil {
		return nil, errNotOpen
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, dashboard_id, status, title, file, tables, query_id, error
		FROM dashboard_results WHERE run_id = ?
		ORDER BY length(dashboard_id), dashboard_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []DashboardResult
	for rows.Next() {
		var (
			r      DashboardResult
			status string
			tables string
		)
		if err := rows.Scan(&r.RunID, &r.DashboardID, &status, &r.Title, &r.File, &tables, &r.QueryID, &r.Error); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		r.Status = ResultStatus(status)
		if tables != "" {
			r.Tables = strings.Split(tables, ",")
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	return results, nil
}
