package exposure

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestID_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  ID
	}{
		{name: "number", input: `42`, want: "42"},
		{name: "string", input: `"42"`, want: "42"},
		{name: "opaque string", input: `"abc-1"`, want: "abc-1"},
		{name: "null", input: `null`, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got ID
			require.NoError(t, json.Unmarshal([]byte(tt.input), &got))
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("invalid", func(t *testing.T) {
		var got ID
		assert.Error(t, json.Unmarshal([]byte(`{}`), &got))
	})
}

func TestSortIDs(t *testing.T) {
	ids := []ID{"10", "9", "100", "2"}
	SortIDs(ids)
	assert.Equal(t, []ID{"2", "9", "10", "100"}, ids)

	mixed := []ID{"b", "10", "a"}
	SortIDs(mixed)
	assert.Equal(t, []ID{"10", "a", "b"}, mixed)

	for _, input := range [][]ID{
		{"9", "10", "1a"},
		{"10", "1a", "9"},
		{"1a", "9", "10"},
		{"1a", "10", "9"},
	} {
		ids := append([]ID(nil), input...)
		SortIDs(ids)
		assert.Equal(t, []ID{"9", "10", "1a"}, ids, "input %v", input)
	}
}

func TestParseIDs(t *testing.T) {
	assert.Equal(t, []ID{"1", "2", "3"}, ParseIDs([]string{" 1 ", "2,3", ""}))
	assert.Empty(t, ParseIDs(nil))
}

func TestDashboard_QueryIDs(t *testing.T) {
	d := Dashboard{
		ID: "7",
		Tiles: []Tile{
			lookTile("a", "10"),
			queryTile("b", "11"),
			queryTile("c", "10"),
			{ID: "text-tile"},
			{ID: "empty-ids", LookQueryID: idPtr(""), QueryID: idPtr("")},
		},
	}

	assert.Equal(t, []ID{"10", "11"}, d.QueryIDs())
	assert.Empty(t, Dashboard{}.QueryIDs())
}

func TestUser_DisplayName(t *testing.T) {
	tests := []struct {
		name string
		user User
		want string
	}{
		{name: "both names", user: User{FirstName: "Ada", LastName: "Lovelace"}, want: "Ada Lovelace"},
		{name: "both empty", user: User{}, want: ""},
		{name: "blank", user: User{FirstName: "  ", LastName: "\t"}, want: ""},
		{name: "first only", user: User{FirstName: "Ada"}, want: "Ada"},
		{name: "last only", user: User{LastName: "Lovelace"}, want: "Lovelace"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.user.DisplayName())
		})
	}
}

func TestNewDirectory_ExcludesLookerEmployees(t *testing.T) {
	dir := NewDirectory([]User{
		{ID: "1", FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"},
		{ID: "2", FirstName: "Looker", LastName: "Support", Email: "help@looker.com", VerifiedLookerEmployee: true},
		{ID: "3", Email: "anon@example.com"},
	})

	require.Len(t, dir, 2)

	owner, ok := dir.Lookup("1")
	require.True(t, ok)
	assert.Equal(t, Owner{Name: "Ada Lovelace", Email: "ada@example.com"}, owner)

	_, ok = dir.Lookup("2")
	assert.False(t, ok, "support accounts are not valid owners")

	owner, ok = dir.Lookup("3")
	require.True(t, ok)
	assert.Equal(t, "", owner.Name)
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		input   string
		want    FailurePolicy
		wantErr bool
	}{
		{input: "", want: PolicySkip},
		{input: "skip", want: PolicySkip},
		{input: "DEGRADE", want: PolicyDegrade},
		{input: " abort ", want: PolicyAbort},
		{input: "retry", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePolicy(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "unknown failure policy")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	var p FailurePolicy
	require.NoError(t, p.UnmarshalText([]byte("abort")))
	assert.Equal(t, PolicyAbort, p)
}
