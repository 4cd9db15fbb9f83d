package exposure

import (
	"context"
	"log/slog"
	"strings"
)

// DashboardURL returns the canonical browser URL of a dashboard.
func DashboardURL(baseURL string, id ID) string {
	return strings.TrimRight(baseURL, "/") + "/dashboards/" + id.String()
}

// Builder turns dashboard metadata into an exposure record.
type Builder struct {
	resolver *Resolver
	baseURL  string
	logger   *slog.Logger
}

// NewBuilder creates a Builder. baseURL is the Looker web URL used to build
// canonical dashboard links; when empty the dashboard's own URL is kept.
func NewBuilder(resolver *Resolver, baseURL string, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Builder{resolver: resolver, baseURL: baseURL, logger: logger}
}

// Build resolves the dashboard's queries and assembles its Record. The owner
// is looked up before any SQL is fetched; a missing owner yields a
// *MissingOwnerError.
func (b *Builder) Build(ctx context.Context, d Dashboard, owners Directory) (Record, error) {
	owner, ok := owners.Lookup(d.UserID)
	if !ok {
		return Record{}, &MissingOwnerError{DashboardID: d.ID, UserID: d.UserID}
	}

	queryIDs := d.QueryIDs()
	res, err := b.resolver.ResolveTables(ctx, queryIDs)
	if err != nil {
		return Record{}, err
	}

	url := d.URL
	if b.baseURL != "" {
		url = DashboardURL(b.baseURL, d.ID)
	}

	b.logger.Debug("built exposure",
		slog.String("dashboard_id", d.ID.String()),
		slog.Int("queries", len(queryIDs)),
		slog.Int("tables", len(res.Tables)),
		slog.Int("skipped", len(res.Skipped)))

	return Record{
		DashboardID:    d.ID,
		DashboardURL:   url,
		Owner:          owner,
		QueryIDs:       queryIDs,
		Tables:         res.Tables,
		Title:          d.Title,
		SkippedQueries: res.Skipped,
	}, nil
}
