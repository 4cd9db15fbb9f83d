package looker

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/lookerexp/internal/exposure"
	"github.com/leapstack-labs/lookerexp/internal/looker/lookertest"
	"github.com/leapstack-labs/lookerexp/internal/testutil"
)

func openTestSession(t *testing.T, f *lookertest.Server) *Session {
	t.Helper()
	s, err := Open(context.Background(), Config{
		APIURL:       f.URL,
		ClientID:     lookertest.ClientID,
		ClientSecret: lookertest.ClientSecret,
		RateLimit:    1000,
		Burst:        100,
		Retry:        RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
		HTTPClient:   f.Client(),
		Logger:       testutil.NewTestLogger(t),
	})
	require.NoError(t, err)
	return s
}

func TestOpen_Authenticates(t *testing.T) {
	f := lookertest.NewServer(t)
	s := openTestSession(t, f)

	assert.Equal(t, int32(1), f.Logins.Load())

	users, err := NewClient(s).FetchUsers(context.Background())
	require.NoError(t, err)
	assert.Len(t, users, 3)
	assert.Equal(t, int32(1), f.Logins.Load(), "token is reused across calls")
}

func TestOpen_RejectedCredentials(t *testing.T) {
	f := lookertest.NewServer(t)

	_, err := Open(context.Background(), Config{
		APIURL:       f.URL,
		ClientID:     lookertest.ClientID,
		ClientSecret: "wrong",
		HTTPClient:   f.Client(),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestOpen_RetriesTransientLoginFailure(t *testing.T) {
	f := lookertest.NewServer(t)
	f.LoginFailures = 1

	s := openTestSession(t, f)

	assert.Equal(t, int32(2), f.Logins.Load())
	_, err := NewClient(s).FetchUsers(context.Background())
	require.NoError(t, err)
}

func TestOpen_LoginUnavailableIsNotAuthentication(t *testing.T) {
	f := lookertest.NewServer(t)
	f.LoginFailures = 10

	_, err := Open(context.Background(), Config{
		APIURL:       f.URL,
		ClientID:     lookertest.ClientID,
		ClientSecret: lookertest.ClientSecret,
		Retry:        RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
		HTTPClient:   f.Client(),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetch)
	assert.NotErrorIs(t, err, ErrAuthentication)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, int32(3), f.Logins.Load())
}

func TestOpen_MissingSettings(t *testing.T) {
	_, err := Open(context.Background(), Config{ClientID: "id", ClientSecret: "secret"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api url is required")

	_, err = Open(context.Background(), Config{APIURL: "http://localhost"})
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestClient_FetchUsers(t *testing.T) {
	f := lookertest.NewServer(t)
	c := NewClient(openTestSession(t, f))

	users, err := c.FetchUsers(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []exposure.User{
		{ID: "1", FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"},
		{ID: "2", Email: "new@example.com"},
		{ID: "3", FirstName: "Looker", LastName: "Support", Email: "help@looker.com", VerifiedLookerEmployee: true},
	}, users)
}

func TestClient_FetchDashboard(t *testing.T) {
	f := lookertest.NewServer(t)
	c := NewClient(openTestSession(t, f))

	d, err := c.FetchDashboard(context.Background(), "100")
	require.NoError(t, err)

	assert.Equal(t, exposure.ID("100"), d.ID)
	assert.Equal(t, "Revenue", d.Title)
	assert.Equal(t, exposure.ID("1"), d.UserID)
	assert.Equal(t, exposure.ID("7"), d.FolderID)
	require.Len(t, d.Tiles, 3)
	assert.Equal(t, []exposure.ID{"10", "11"}, d.QueryIDs())
}

func TestClient_FetchDashboardNotFound(t *testing.T) {
	f := lookertest.NewServer(t)
	c := NewClient(openTestSession(t, f))

	_, err := c.FetchDashboard(context.Background(), "999")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetch)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "Not found", apiErr.Message)
	assert.Contains(t, apiErr.Error(), "GET /dashboards/999: status 404")
}

func TestClient_ListDashboards(t *testing.T) {
	f := lookertest.NewServer(t)
	c := NewClient(openTestSession(t, f))

	ds, err := c.ListDashboards(context.Background())
	require.NoError(t, err)
	require.Len(t, ds, 4)
	assert.Equal(t, exposure.ID("7"), ds[0].FolderID)
	assert.True(t, ds[1].Deleted)
	assert.Empty(t, ds[0].Tiles)
}

func TestClient_FetchQuerySQL(t *testing.T) {
	f := lookertest.NewServer(t)
	c := NewClient(openTestSession(t, f))

	sql, err := c.FetchQuerySQL(context.Background(), "10")
	require.NoError(t, err)
	assert.Equal(t, "select * from a.b.orders", sql)
}

func TestClient_FetchQuerySQLRejectsNonSQL(t *testing.T) {
	f := lookertest.NewServer(t)
	c := NewClient(openTestSession(t, f))

	_, err := c.FetchQuerySQL(context.Background(), "json")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetch)
	assert.Contains(t, err.Error(), "unexpected content type")
	assert.Equal(t, int32(1), f.SQLAttempts.Load(), "content type mismatches are not retried")
}

func TestClient_RetriesTransientFailures(t *testing.T) {
	f := lookertest.NewServer(t)
	f.SQLFailures = 2
	c := NewClient(openTestSession(t, f))

	sql, err := c.FetchQuerySQL(context.Background(), "11")
	require.NoError(t, err)
	assert.Contains(t, sql, "a.b.customers")
	assert.Equal(t, int32(3), f.SQLAttempts.Load())
}

func TestClient_RetriesTruncatedBody(t *testing.T) {
	f := lookertest.NewServer(t)
	f.SQLTruncations = 1
	c := NewClient(openTestSession(t, f))

	sql, err := c.FetchQuerySQL(context.Background(), "10")
	require.NoError(t, err)
	assert.Equal(t, "select * from a.b.orders", sql)
	assert.Equal(t, int32(2), f.SQLAttempts.Load())
}

func TestClient_GivesUpAfterMaxAttempts(t *testing.T) {
	f := lookertest.NewServer(t)
	f.SQLFailures = 10
	c := NewClient(openTestSession(t, f))

	_, err := c.FetchQuerySQL(context.Background(), "11")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, int32(3), f.SQLAttempts.Load())
}

func TestClient_NotFoundIsNotRetried(t *testing.T) {
	f := lookertest.NewServer(t)
	c := NewClient(openTestSession(t, f))

	_, err := c.FetchQuerySQL(context.Background(), "404")
	require.Error(t, err)
	assert.Equal(t, int32(1), f.SQLAttempts.Load())
}

func TestSession_Close(t *testing.T) {
	f := lookertest.NewServer(t)
	s := openTestSession(t, f)

	require.NoError(t, s.Close(context.Background()))
	require.NoError(t, s.Close(context.Background()))
	assert.Equal(t, int32(1), f.Logouts.Load())

	_, err := NewClient(s).FetchUsers(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session closed")
}

func TestSession_CloseConcurrentWithCalls(t *testing.T) {
	f := lookertest.NewServer(t)
	s := openTestSession(t, f)
	c := NewClient(s)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.FetchUsers(context.Background())
		}()
	}
	require.NoError(t, s.Close(context.Background()))
	wg.Wait()

	assert.Equal(t, int32(1), f.Logouts.Load())
}

func TestClient_DrivesAggregator(t *testing.T) {
	f := lookertest.NewServer(t)
	c := NewClient(openTestSession(t, f))

	agg := exposure.NewAggregator(exposure.AggregatorConfig{
		Source:  c,
		BaseURL: "https://example.looker.com",
		Logger:  testutil.NewTestLogger(t),
	})
	report, err := agg.BuildAll(context.Background(), []exposure.ID{"100", "999"})
	require.NoError(t, err)

	require.Len(t, report.Records, 1)
	rec := report.Records[0]
	assert.Equal(t, []string{"customers", "orders"}, rec.Tables)
	assert.Equal(t, []exposure.ID{"10", "11"}, rec.QueryIDs)
	assert.Equal(t, "Ada Lovelace", rec.Owner.Name)

	require.Len(t, report.Failures, 1)
	assert.Equal(t, exposure.ID("999"), report.Failures[0].DashboardID)
	assert.ErrorIs(t, report.Failures[0], ErrFetch)
}
