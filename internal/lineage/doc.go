// Package lineage extracts table references from the SQL text that Looker
// generates for dashboard queries.
//
// Extraction is a textual heuristic, not a parser. A reference is recognised
// only when the keyword FROM or JOIN is followed by whitespace and a fully
// qualified three-part identifier:
//
//	database.schema.table
//
// Each segment must consist of letters, digits or underscores. Only the
// table segment is kept and it is normalised to lowercase.
//
// # Limitations
//
// The following are silently ignored:
//
//   - unqualified or two-part names (FROM orders, FROM analytics.orders)
//   - quoted identifiers (FROM "db"."schema"."orders")
//   - CTE names and subqueries
//   - references introduced by other keywords (USING, comma joins)
//
// This is a known precision limitation. Upgrading to a real SQL parser would
// change which tables appear in generated exposures and is out of scope.
//
// # Basic Usage
//
//	tables := lineage.ExtractTables("select * from a.b.orders join a.b.customers")
//	// tables == []string{"customers", "orders"}
package lineage
