package commands

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/lookerexp/internal/state"
)

// NewRunsCommand creates the runs command.
func NewRunsCommand() *cobra.Command {
	var (
		format string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "Show recent generate runs",
		Long: `Show the run history recorded by generate.

Without arguments, lists the most recent runs. With a run id, lists the
outcome of every dashboard in that run.`,
		Example: `  # Last 5 runs
  lookerexp runs --limit 5

  # Dashboards of one run
  lookerexp runs 3f2b9c1e-...`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runShowRun(cmd, args[0], format)
			}
			return runListRuns(cmd, limit, format)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of runs to show (0 for all)")
	addFormatFlag(cmd, &format)

	return cmd
}

func openHistory(cmd *cobra.Command) (*state.SQLiteStore, func(), error) {
	cc := NewCommandContext(cmd)
	if _, err := os.Stat(cc.Cfg.StatePath); errors.Is(err, os.ErrNotExist) {
		return nil, nil, fmt.Errorf("no run history at %s\nHint: run generate first", cc.Cfg.StatePath)
	}
	return cc.OpenStore(cmd.Context())
}

func runListRuns(cmd *cobra.Command, limit int, format string) error {
	store, cleanup, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	runs, err := store.ListRuns(cmd.Context(), limit)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		duration := "-"
		if r.CompletedAt != nil {
			duration = r.Duration().Round(time.Millisecond).String()
		}
		mode := "write"
		if r.DryRun {
			mode = "dry-run"
		}
		rows = append(rows, []string{
			r.ID,
			r.StartedAt.Local().Format(time.DateTime),
			string(r.Status),
			r.Policy,
			mode,
			strconv.Itoa(r.Requested),
			strconv.Itoa(r.Written),
			strconv.Itoa(r.Failed),
			duration,
		})
	}
	cols := []string{"id", "started", "status", "policy", "mode", "requested", "written", "failed", "duration"}
	return renderRows(cmd.OutOrStdout(), cols, rows, format)
}

func runShowRun(cmd *cobra.Command, id, format string) error {
	store, cleanup, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	if _, err := store.GetRun(ctx, id); err != nil {
		return err
	}
	results, err := store.ListResults(ctx, id)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{
			r.DashboardID,
			string(r.Status),
			r.Title,
			strconv.Itoa(len(r.Tables)),
			r.File,
			r.QueryID,
			strings.ReplaceAll(r.Error, "\n", " "),
		})
	}
	cols := []string{"dashboard", "status", "title", "tables", "file", "query", "error"}
	return renderRows(cmd.OutOrStdout(), cols, rows, format)
}
