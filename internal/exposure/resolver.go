package exposure

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/lookerexp/internal/lineage"
)

// DefaultConcurrency bounds fan-out when no limit is configured.
const DefaultConcurrency = 4

// SQLFetcher returns the compiled SQL of a query.
type SQLFetcher interface {
	FetchQuerySQL(ctx context.Context, id ID) (string, error)
}

// SQLFetcherFunc adapts a function to SQLFetcher.
type SQLFetcherFunc func(ctx context.Context, id ID) (string, error)

// FetchQuerySQL calls f.
func (f SQLFetcherFunc) FetchQuerySQL(ctx context.Context, id ID) (string, error) {
	return f(ctx, id)
}

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	Fetcher SQLFetcher
	Policy  FailurePolicy
	// Concurrency caps simultaneous SQL fetches for one dashboard.
	Concurrency int
	Logger      *slog.Logger
}

// Resolver fetches the SQL for a dashboard's queries and unions the tables
// they reference.
type Resolver struct {
	fetcher     SQLFetcher
	policy      FailurePolicy
	concurrency int
	logger      *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(cfg ResolverConfig) *Resolver {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	policy := cfg.Policy
	if policy == "" {
		policy = DefaultPolicy
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Resolver{
		fetcher:     cfg.Fetcher,
		policy:      policy,
		concurrency: concurrency,
		logger:      logger,
	}
}

// ResolveTables fetches every distinct query in queryIDs and returns the
// union of the tables they reference. Under PolicyDegrade failed queries are
// listed in Resolution.Skipped; otherwise the first failure is returned as a
// *QueryError and outstanding fetches are cancelled.
func (r *Resolver) ResolveTables(ctx context.Context, queryIDs []ID) (Resolution, error) {
	ids := UniqueIDs(queryIDs)
	tables := make([][]string, len(ids))
	skipped := make([]bool, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, id := range ids {
		g.Go(func() error {
			sqlText, err := r.fetcher.FetchQuerySQL(gctx, id)
			if err != nil {
				qerr := &QueryError{QueryID: id, Err: err}
				if r.policy != PolicyDegrade || gctx.Err() != nil {
					return qerr
				}
				r.logger.Warn("skipping query", slog.String("query_id", id.String()), slog.Any("error", err))
				skipped[i] = true
				return nil
			}

			tables[i] = lineage.ExtractTables(sqlText)
			r.logger.Debug("resolved query",
				slog.String("query_id", id.String()),
				slog.Int("tables", len(tables[i])))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Resolution{}, err
	}
	if err := ctx.Err(); err != nil {
		return Resolution{}, err
	}

	set := make(map[string]struct{})
	var res Resolution
	for i, id := range ids {
		if skipped[i] {
			res.Skipped = append(res.Skipped, id)
			continue
		}
		for _, t := range tables[i] {
			set[t] = struct{}{}
		}
	}
	res.Tables = lineage.SortedSet(set)
	return res, nil
}
