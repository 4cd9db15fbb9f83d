package lineage

import (
	"regexp"
	"sort"
	"strings"
)

// tableRefPattern matches FROM/JOIN followed by a three-part identifier.
// Segments accept any Unicode letter or digit so non-ASCII names are never
// cut short. Input is lowercased before matching, so the pattern itself is
// lowercase.
var tableRefPattern = regexp.MustCompile(`(?:from|join)\s+(` + segment + `\.` + segment + `\.` + segment + `)`)

const segment = `[\p{L}\p{N}_]+`

// QualifiedName is a database.schema.table reference found in SQL text.
type QualifiedName struct {
	Database string
	Schema   string
	Table    string
}

// String returns the dotted form of the name.
func (q QualifiedName) String() string {
	return q.Database + "." + q.Schema + "." + q.Table
}

// ExtractQualified returns every three-part reference in sqlText, lowercased,
// deduplicated and sorted by their dotted form.
func ExtractQualified(sqlText string) []QualifiedName {
	matches := tableRefPattern.FindAllStringSubmatch(strings.ToLower(sqlText), -1)

	seen := make(map[string]struct{}, len(matches))
	names := make([]QualifiedName, 0, len(matches))
	for _, m := range matches {
		parts := strings.Split(m[1], ".")
		if len(parts) != 3 {
			continue
		}
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		names = append(names, QualifiedName{Database: parts[0], Schema: parts[1], Table: parts[2]})
	}

	sort.Slice(names, func(i, j int) bool {
		return names[i].String() < names[j].String()
	})
	return names
}

// ExtractTables returns the set of bare table names referenced via FROM or
// JOIN in sqlText. The result is lowercase, deduplicated and sorted. It is
// never nil; input without qualified references yields an empty slice.
func ExtractTables(sqlText string) []string {
	set := make(map[string]struct{})
	for _, q := range ExtractQualified(sqlText) {
		set[q.Table] = struct{}{}
	}
	return SortedSet(set)
}

// SortedSet returns the members of set in ascending order.
func SortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
