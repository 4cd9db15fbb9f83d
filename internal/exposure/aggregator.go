package exposure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// DashboardFetcher returns dashboard metadata by id.
type DashboardFetcher interface {
	FetchDashboard(ctx context.Context, id ID) (Dashboard, error)
}

// UserFetcher returns every user visible to the API credentials.
type UserFetcher interface {
	FetchUsers(ctx context.Context) ([]User, error)
}

// Source is everything the pipeline reads from upstream.
type Source interface {
	SQLFetcher
	DashboardFetcher
	UserFetcher
}

// AggregatorConfig configures an Aggregator.
type AggregatorConfig struct {
	Source Source
	// BaseURL is the Looker web URL used for canonical dashboard links.
	BaseURL string
	Policy  FailurePolicy
	// DashboardConcurrency caps dashboards resolved at once.
	DashboardConcurrency int
	// QueryConcurrency caps SQL fetches per dashboard.
	QueryConcurrency int
	// BatchTimeout bounds the whole BuildAll call. Zero means no deadline.
	BatchTimeout time.Duration
	Logger       *slog.Logger
}

// Aggregator builds exposures for a batch of dashboards.
type Aggregator struct {
	dashboards   DashboardFetcher
	users        UserFetcher
	builder      *Builder
	policy       FailurePolicy
	concurrency  int
	batchTimeout time.Duration
	logger       *slog.Logger
}

// NewAggregator creates an Aggregator and the Resolver and Builder it drives.
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	policy := cfg.Policy
	if policy == "" {
		policy = DefaultPolicy
	}
	concurrency := cfg.DashboardConcurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	resolver := NewResolver(ResolverConfig{
		Fetcher:     cfg.Source,
		Policy:      policy,
		Concurrency: cfg.QueryConcurrency,
		Logger:      logger,
	})

	return &Aggregator{
		dashboards:   cfg.Source,
		users:        cfg.Source,
		builder:      NewBuilder(resolver, cfg.BaseURL, logger),
		policy:       policy,
		concurrency:  concurrency,
		batchTimeout: cfg.BatchTimeout,
		logger:       logger,
	}
}

// Report is the result of a batch. Records and Failures follow the order of
// the requested dashboard ids.
type Report struct {
	Records  []Record
	Failures []*DashboardError
}

// Failed reports whether any dashboard failed.
func (r *Report) Failed() bool { return len(r.Failures) > 0 }

// BuildAll fetches the user directory once and builds an exposure for each
// distinct dashboard id. Failing to fetch the directory is fatal. Other
// failures are collected in Report.Failures, except under PolicyAbort where
// the first one cancels the batch and is returned alongside the records built
// so far.
func (a *Aggregator) BuildAll(ctx context.Context, dashboardIDs []ID) (*Report, error) {
	if a.batchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.batchTimeout)
		defer cancel()
	}

	users, err := a.users.FetchUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user directory: %w", err)
	}
	owners := NewDirectory(users)
	a.logger.Info("loaded user directory", slog.Int("users", len(users)), slog.Int("owners", len(owners)))

	ids := dedupeInOrder(dashboardIDs)
	records := make([]*Record, len(ids))
	failures := make([]*DashboardError, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)

	for i, id := range ids {
		g.Go(func() error {
			rec, err := a.BuildOne(gctx, id, owners)
			if err != nil {
				derr := NewDashboardError(id, err)
				if a.policy == PolicyAbort {
					return derr
				}
				a.logger.Error("dashboard failed", dashboardErrorAttrs(derr)...)
				failures[i] = derr
				return nil
			}
			records[i] = &rec
			return nil
		})
	}

	waitErr := g.Wait()

	report := &Report{}
	for i := range ids {
		if records[i] != nil {
			report.Records = append(report.Records, *records[i])
		}
		if failures[i] != nil {
			report.Failures = append(report.Failures, failures[i])
		}
	}

	if waitErr != nil {
		var derr *DashboardError
		if errors.As(waitErr, &derr) {
			report.Failures = append(report.Failures, derr)
		}
		return report, fmt.Errorf("batch aborted: %w", waitErr)
	}
	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("batch interrupted: %w", err)
	}

	a.logger.Info("built exposures",
		slog.Int("dashboards", len(ids)),
		slog.Int("exposures", len(report.Records)),
		slog.Int("failures", len(report.Failures)))

	return report, nil
}

// BuildOne fetches a single dashboard and builds its exposure against an
// already loaded directory.
func (a *Aggregator) BuildOne(ctx context.Context, id ID, owners Directory) (Record, error) {
	d, err := a.dashboards.FetchDashboard(ctx, id)
	if err != nil {
		return Record{}, fmt.Errorf("failed to fetch dashboard: %w", err)
	}
	if d.ID == "" {
		d.ID = id
	}
	return a.builder.Build(ctx, d, owners)
}

func dedupeInOrder(ids []ID) []ID {
	seen := make(map[ID]struct{}, len(ids))
	out := make([]ID, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func dashboardErrorAttrs(e *DashboardError) []any {
	attrs := []any{slog.String("dashboard_id", e.DashboardID.String())}
	if e.QueryID != "" {
		attrs = append(attrs, slog.String("query_id", e.QueryID.String()))
	}
	return append(attrs, slog.Any("error", e.Err))
}
