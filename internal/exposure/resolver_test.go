package exposure

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/lookerexp/internal/testutil"
)

func TestResolver_DeduplicatesTables(t *testing.T) {
	src := newFakeSource()
	src.sql["1"] = "select * from a.b.orders"
	src.sql["2"] = "select count(*) from A.B.ORDERS"

	r := NewResolver(ResolverConfig{Fetcher: src, Logger: testutil.NewTestLogger(t)})
	res, err := r.ResolveTables(context.Background(), []ID{"1", "2"})
	require.NoError(t, err)

	assert.Equal(t, []string{"orders"}, res.Tables)
	assert.Empty(t, res.Skipped)
}

func TestResolver_FetchesEachQueryOnce(t *testing.T) {
	src := newFakeSource()
	src.sql["10"] = "select * from a.b.orders"
	src.sql["11"] = "select * from a.b.customers"

	r := NewResolver(ResolverConfig{Fetcher: src, Concurrency: 2})
	res, err := r.ResolveTables(context.Background(), []ID{"10", "11", "10", "11", "10"})
	require.NoError(t, err)

	assert.Equal(t, []string{"customers", "orders"}, res.Tables)
	assert.Equal(t, 1, src.calls("10"))
	assert.Equal(t, 1, src.calls("11"))
}

func TestResolver_NoQueries(t *testing.T) {
	r := NewResolver(ResolverConfig{Fetcher: newFakeSource()})
	res, err := r.ResolveTables(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{}, res.Tables)
}

func TestResolver_EmptyExtractionIsNotAnError(t *testing.T) {
	src := newFakeSource()
	src.sql["1"] = "SELECT 1"

	r := NewResolver(ResolverConfig{Fetcher: src})
	res, err := r.ResolveTables(context.Background(), []ID{"1"})
	require.NoError(t, err)
	assert.Empty(t, res.Tables)
}

func TestResolver_FailurePolicies(t *testing.T) {
	newSource := func() *fakeSource {
		src := newFakeSource()
		src.sql["1"] = "select * from a.b.orders"
		src.sql["2"] = "select * from a.b.customers"
		src.failQueries["2"] = true
		return src
	}

	t.Run("degrade drops failed query", func(t *testing.T) {
		r := NewResolver(ResolverConfig{Fetcher: newSource(), Policy: PolicyDegrade, Logger: testutil.NewTestLogger(t)})
		res, err := r.ResolveTables(context.Background(), []ID{"1", "2"})
		require.NoError(t, err)
		assert.Equal(t, []string{"orders"}, res.Tables)
		assert.Equal(t, []ID{"2"}, res.Skipped)
	})

	for _, policy := range []FailurePolicy{PolicySkip, PolicyAbort} {
		t.Run(string(policy)+" fails resolution", func(t *testing.T) {
			r := NewResolver(ResolverConfig{Fetcher: newSource(), Policy: policy})
			_, err := r.ResolveTables(context.Background(), []ID{"1", "2"})
			require.Error(t, err)

			var qerr *QueryError
			require.True(t, errors.As(err, &qerr))
			assert.Equal(t, ID("2"), qerr.QueryID)
			assert.ErrorIs(t, err, errUpstream)
		})
	}
}

func TestResolver_CancelledContext(t *testing.T) {
	src := newFakeSource()
	src.sql["1"] = "select * from a.b.orders"

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewResolver(ResolverConfig{Fetcher: src, Policy: PolicyDegrade})
	_, err := r.ResolveTables(ctx, []ID{"1"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolver_FetcherFunc(t *testing.T) {
	fetch := SQLFetcherFunc(func(_ context.Context, id ID) (string, error) {
		return "select * from db.sch." + "t" + id.String(), nil
	})

	r := NewResolver(ResolverConfig{Fetcher: fetch})
	res, err := r.ResolveTables(context.Background(), []ID{"2", "1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, res.Tables)
}
