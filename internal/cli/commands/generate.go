package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/lookerexp/internal/exposure"
	"github.com/leapstack-labs/lookerexp/internal/looker"
	"github.com/leapstack-labs/lookerexp/internal/manifest"
	"github.com/leapstack-labs/lookerexp/internal/state"
)

var errNoSelection = errors.New("no dashboards selected\nHint: pass --dashboard or --folder, or set dashboards in lookerexp.yaml")

type generateOptions struct {
	dryRun  bool
	prune   bool
	noState bool
}

// NewGenerateCommand creates the generate command.
func NewGenerateCommand() *cobra.Command {
	opts := &generateOptions{}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate dbt exposures for Looker dashboards",
		Long: `Fetch the selected dashboards from Looker, resolve the SQL behind every tile,
and write one dbt exposure YAML file per dashboard.

Dashboards are selected explicitly with --dashboard or by folder with --folder.
Failures are handled according to the failure policy:
  skip     drop the failing dashboard and continue (default)
  degrade  drop only the failing queries and keep the dashboard
  abort    stop the batch at the first failure`,
		Example: `  # Export two dashboards
  lookerexp generate --dashboard 42 --dashboard 43

  # Export a whole folder and remove files for dashboards that disappeared
  lookerexp generate --folder 7 --prune

  # Print the documents without writing files
  lookerexp generate --dashboard 42 --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGenerate(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringSlice("dashboard", nil, "Dashboard id to export (repeatable or comma separated)")
	flags.StringSlice("folder", nil, "Export every dashboard in this folder (repeatable)")
	flags.Bool("include-deleted", false, "Include soft-deleted dashboards found through --folder")
	flags.String("policy", "", "Failure policy (skip|degrade|abort)")
	flags.String("output-dir", "", "Directory for generated YAML files (default: yaml_files)")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "Print documents to stdout instead of writing files")
	flags.BoolVar(&opts.prune, "prune", false, "Remove generated files for dashboards not produced by this run")
	flags.BoolVar(&opts.noState, "no-state", false, "Do not record the run in the state database")

	_ = cmd.RegisterFlagCompletionFunc("policy", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"skip", "degrade", "abort"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runGenerate(cmd *cobra.Command, opts *generateOptions) error {
	cc := NewCommandContext(cmd)
	cfg := cc.Cfg
	logger := cc.Logger
	ctx := cmd.Context()

	if opts.prune && opts.dryRun {
		return errors.New("--prune cannot be combined with --dry-run")
	}

	sel := exposure.Selection{
		DashboardIDs:   cfg.DashboardIDs(),
		FolderIDs:      cfg.FolderIDs(),
		IncludeDeleted: cfg.IncludeDeleted,
	}
	if sel.Empty() {
		return errNoSelection
	}

	client, closeClient, err := cc.OpenClient(ctx)
	if err != nil {
		return err
	}
	defer closeClient()

	ids, err := selectDashboards(ctx, client, sel)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		logger.Warn("no dashboards matched the selection", slog.Int("folders", len(sel.FolderIDs)))
	}

	rec := newRunRecorder(cc, opts)
	defer rec.close()
	rec.start(ctx, cfg.Policy.String(), cfg.OutputDir, len(ids))

	agg := exposure.NewAggregator(exposure.AggregatorConfig{
		Source:               client,
		BaseURL:              cfg.BaseURL,
		Policy:               cfg.Policy,
		DashboardConcurrency: cfg.Concurrency.Dashboards,
		QueryConcurrency:     cfg.Concurrency.Queries,
		BatchTimeout:         cfg.Timeouts.Batch,
		Logger:               logger,
	})

	report, buildErr := agg.BuildAll(ctx, ids)
	if report == nil {
		rec.finish(ctx, state.RunStatusFailed, buildErr)
		return buildErr
	}

	var files map[exposure.ID]string
	if opts.dryRun {
		if err := encodeAll(cmd.OutOrStdout(), report.Records); err != nil {
			rec.finish(ctx, state.RunStatusFailed, err)
			return err
		}
	} else {
		writer := manifest.NewWriter(cfg.OutputDir, logger)
		paths, err := writer.Write(report.Records)
		if err != nil {
			rec.finish(ctx, state.RunStatusFailed, err)
			return err
		}
		files = make(map[exposure.ID]string, len(paths))
		for i, p := range paths {
			files[report.Records[i].DashboardID] = p
		}

		// Only a clean batch knows the full set of live files.
		if opts.prune && buildErr == nil && !report.Failed() {
			if _, err := writer.Prune(paths); err != nil {
				rec.finish(ctx, state.RunStatusFailed, err)
				return err
			}
		} else if opts.prune {
			logger.Warn("skipping prune because the batch had failures")
		}
	}

	rec.record(ctx, report, files)
	printSummary(cmd.ErrOrStderr(), report, cfg.OutputDir, opts.dryRun)

	switch {
	case buildErr != nil:
		rec.finish(ctx, state.RunStatusAborted, buildErr)
		return buildErr
	case report.Failed():
		err := checkFailed(len(report.Failures), len(ids))
		rec.finish(ctx, state.RunStatusFailed, err)
		return err
	default:
		rec.finish(ctx, state.RunStatusCompleted, nil)
		return nil
	}
}

// selectDashboards lists dashboards only when folders are part of the
// selection.
func selectDashboards(ctx context.Context, client *looker.Client, sel exposure.Selection) ([]exposure.ID, error) {
	var listing []exposure.Dashboard
	if len(sel.FolderIDs) > 0 {
		var err error
		listing, err = client.ListDashboards(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list dashboards: %w", err)
		}
	}
	return sel.Resolve(listing), nil
}

// encodeAll writes records as a multi-document YAML stream.
func encodeAll(w io.Writer, records []exposure.Record) error {
	for i, r := range records {
		if i > 0 {
			if _, err := io.WriteString(w, "---\n"); err != nil {
				return err
			}
		}
		if err := manifest.Encode(w, r); err != nil {
			return err
		}
	}
	return nil
}

func printSummary(w io.Writer, report *exposure.Report, dir string, dryRun bool) {
	verb := "Wrote"
	target := fmt.Sprintf(" to %s", filepath.Clean(dir))
	if dryRun {
		verb, target = "Rendered", ""
	}
	_, _ = fmt.Fprintf(w, "%s %d exposure(s)%s", verb, len(report.Records), target)
	if n := len(report.Failures); n > 0 {
		_, _ = fmt.Fprintf(w, ", %d dashboard(s) failed", n)
	}
	_, _ = fmt.Fprintln(w)
	for _, f := range report.Failures {
		_, _ = fmt.Fprintf(w, "  - %v\n", f)
	}
}

// runRecorder writes run history. History is best effort: store failures are
// logged and never fail the command.
type runRecorder struct {
	logger  *slog.Logger
	store   state.Store
	cleanup func()
	run     *state.Run
	dryRun  bool
}

func newRunRecorder(cc *CommandContext, opts *generateOptions) *runRecorder {
	r := &runRecorder{logger: cc.Logger, dryRun: opts.dryRun}
	if opts.noState {
		return r
	}
	store, cleanup, err := cc.OpenStore(context.Background())
	if err != nil {
		cc.Logger.Warn("run history disabled", slog.String("error", err.Error()))
		return r
	}
	r.store, r.cleanup = store, cleanup
	return r
}

func (r *runRecorder) start(ctx context.Context, policy, outputDir string, requested int) {
	if r.store == nil {
		return
	}
	run, err := r.store.CreateRun(ctx, state.RunOptions{
		Policy:    policy,
		OutputDir: outputDir,
		DryRun:    r.dryRun,
		Requested: requested,
	})
	if err != nil {
		r.logger.Warn("failed to record run", slog.String("error", err.Error()))
		return
	}
	r.run = run
	r.logger.Debug("recording run", slog.String("run_id", run.ID))
}

func (r *runRecorder) record(ctx context.Context, report *exposure.Report, files map[exposure.ID]string) {
	if r.run == nil {
		return
	}
	results := make([]state.DashboardResult, 0, len(report.Records)+len(report.Failures))
	for _, rec := range report.Records {
		status := state.ResultWritten
		if r.dryRun {
			status = state.ResultDryRun
		}
		results = append(results, state.DashboardResult{
			DashboardID: rec.DashboardID.String(),
			Status:      status,
			Title:       rec.Title,
			File:        files[rec.DashboardID],
			Tables:      rec.Tables,
		})
	}
	for _, f := range report.Failures {
		results = append(results, state.DashboardResult{
			DashboardID: f.DashboardID.String(),
			Status:      state.ResultFailed,
			QueryID:     f.QueryID.String(),
			Error:       f.Err.Error(),
		})
	}
	if err := r.store.RecordResults(context.WithoutCancel(ctx), r.run.ID, results); err != nil {
		r.logger.Warn("failed to record dashboard results", slog.String("error", err.Error()))
	}
}

func (r *runRecorder) finish(ctx context.Context, status state.RunStatus, runErr error) {
	if r.run == nil {
		return
	}
	var msg string
	if runErr != nil {
		msg = runErr.Error()
	}
	if err := r.store.CompleteRun(context.WithoutCancel(ctx), r.run.ID, status, msg); err != nil {
		r.logger.Warn("failed to complete run", slog.String("error", err.Error()))
	}
}

func (r *runRecorder) close() {
	if r.cleanup != nil {
		r.cleanup()
	}
}
