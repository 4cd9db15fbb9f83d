// Package exposure turns Looker dashboards into exposure records: the set of
// warehouse tables each dashboard depends on, together with its owner.
//
// The pipeline runs leaf-first:
//
//	Aggregator -> Builder (per dashboard) -> Resolver (per dashboard) -> lineage.ExtractTables (per query)
//
// Fetching is abstracted behind small interfaces so the pipeline can be
// driven by the Looker client in production and by fakes in tests.
package exposure

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ID is an opaque upstream identifier. Looker API 3.1 encodes ids as JSON
// numbers and 4.0 as strings; both decode into the same value.
type ID string

// UnmarshalJSON accepts a JSON string or number.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("invalid id %s: %w", data, err)
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid id %s: %w", data, err)
	}
	*id = ID(n.String())
	return nil
}

// String returns the id as text.
func (id ID) String() string { return string(id) }

// Less orders integer ids numerically and before all other ids, which are
// ordered lexically.
func (id ID) Less(other ID) bool {
	a, errA := strconv.ParseInt(string(id), 10, 64)
	b, errB := strconv.ParseInt(string(other), 10, 64)
	switch {
	case errA == nil && errB == nil:
		if a != b {
			return a < b
		}
		return id < other
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return id < other
	}
}

// SortIDs sorts ids in place using ID.Less.
func SortIDs(ids []ID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
}

// UniqueIDs returns the distinct non-empty ids in sorted order.
func UniqueIDs(ids []ID) []ID {
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
	SortIDs(out)
	return out
}

// ParseIDs converts raw strings (CLI flags, config values) into ids,
// trimming whitespace and dropping empties.
func ParseIDs(raw []string) []ID {
	ids := make([]ID, 0, len(raw))
	for _, r := range raw {
		for _, part := range strings.Split(r, ",") {
			if p := strings.TrimSpace(part); p != "" {
				ids = append(ids, ID(p))
			}
		}
	}
	return ids
}

// Query is a single Looker query whose compiled SQL is fetched on demand.
type Query struct {
	ID  ID
	SQL string
}

// Tile is one dashboard element. It is backed by a saved Look's query, an
// ad-hoc query, or neither (text and button tiles).
type Tile struct {
	ID          ID
	LookQueryID *ID
	QueryID     *ID
}

// QueryIDs returns the queries the tile runs. Looker never sets both a Look
// and an ad-hoc query on one tile; tiles with neither return nil.
func (t Tile) QueryIDs() []ID {
	var ids []ID
	if t.LookQueryID != nil && *t.LookQueryID != "" {
		ids = append(ids, *t.LookQueryID)
	}
	if t.QueryID != nil && *t.QueryID != "" {
		ids = append(ids, *t.QueryID)
	}
	return ids
}

// Dashboard is the subset of Looker dashboard metadata the pipeline reads.
type Dashboard struct {
	ID       ID
	Title    string
	UserID   ID
	URL      string
	FolderID ID
	Deleted  bool
	Tiles    []Tile
}

// QueryIDs returns the distinct query ids referenced by the dashboard's
// tiles, sorted.
func (d Dashboard) QueryIDs() []ID {
	ids := make([]ID, 0, len(d.Tiles))
	for _, tile := range d.Tiles {
		ids = append(ids, tile.QueryIDs()...)
	}
	return UniqueIDs(ids)
}

// User is a Looker user as returned by the users endpoint.
type User struct {
	ID                     ID
	FirstName              string
	LastName               string
	Email                  string
	VerifiedLookerEmployee bool
}

// DisplayName joins first and last name. Users who never populated their
// name at first login yield an empty string.
func (u User) DisplayName() string {
	return strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
}

// Owner is the person an exposure is attributed to.
type Owner struct {
	Name  string
	Email string
}

// Directory maps user ids to owners. It is built once per batch and only
// read afterwards, so it is safe to share between goroutines.
type Directory map[ID]Owner

// NewDirectory builds a Directory from users, excluding Looker support
// accounts (verified_looker_employee).
func NewDirectory(users []User) Directory {
	dir := make(Directory, len(users))
	for _, u := range users {
		if u.VerifiedLookerEmployee {
			continue
		}
		dir[u.ID] = Owner{Name: u.DisplayName(), Email: u.Email}
	}
	return dir
}

// Lookup returns the owner for a user id.
func (d Directory) Lookup(id ID) (Owner, bool) {
	o, ok := d[id]
	return o, ok
}

// Record is the exposure produced for a single dashboard.
type Record struct {
	DashboardID  ID
	DashboardURL string
	Owner        Owner
	// QueryIDs are the distinct query ids referenced by the dashboard, sorted.
	QueryIDs []ID
	// Tables is the set union of tables referenced by all queries, sorted.
	Tables []string
	Title  string
	// SkippedQueries lists queries whose SQL could not be fetched under the
	// degrade policy.
	SkippedQueries []ID
}

// Resolution is the outcome of resolving a dashboard's queries.
type Resolution struct {
	Tables  []string
	Skipped []ID
}
