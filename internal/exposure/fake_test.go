package exposure

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var errUpstream = errors.New("upstream unavailable")

// fakeSource is an in-memory Source that counts SQL fetches.
type fakeSource struct {
	mu          sync.Mutex
	users       []User
	usersErr    error
	dashboards  map[ID]Dashboard
	sql         map[ID]string
	failQueries map[ID]bool
	sqlCalls    map[ID]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		dashboards:  make(map[ID]Dashboard),
		sql:         make(map[ID]string),
		failQueries: make(map[ID]bool),
		sqlCalls:    make(map[ID]int),
	}
}

func (f *fakeSource) FetchUsers(_ context.Context) ([]User, error) {
	if f.usersErr != nil {
		return nil, f.usersErr
	}
	return f.users, nil
}

func (f *fakeSource) FetchDashboard(ctx context.Context, id ID) (Dashboard, error) {
	if err := ctx.Err(); err != nil {
		return Dashboard{}, err
	}
	d, ok := f.dashboards[id]
	if !ok {
		return Dashboard{}, fmt.Errorf("dashboard %s: %w", id, errUpstream)
	}
	return d, nil
}

func (f *fakeSource) FetchQuerySQL(ctx context.Context, id ID) (string, error) {
	f.mu.Lock()
	f.sqlCalls[id]++
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if f.failQueries[id] {
		return "", errUpstream
	}
	s, ok := f.sql[id]
	if !ok {
		return "", fmt.Errorf("no sql for query %s", id)
	}
	return s, nil
}

func (f *fakeSource) calls(id ID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sqlCalls[id]
}

func idPtr(id ID) *ID { return &id }

func lookTile(id, queryID ID) Tile { return Tile{ID: id, LookQueryID: idPtr(queryID)} }

func queryTile(id, queryID ID) Tile { return Tile{ID: id, QueryID: idPtr(queryID)} }
