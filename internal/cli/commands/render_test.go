package commands

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderRows(t *testing.T) {
	cols := []string{"id", "title"}
	rows := [][]string{
		{"1", "Revenue"},
		{"2", `Ops, "daily"`},
	}

	tests := []struct {
		name   string
		format string
		rows   [][]string
		want   string
	}{
		{
			name:   "csv escapes separators and quotes",
			format: FormatCSV,
			rows:   rows,
			want:   "id,title\n1,Revenue\n2,\"Ops, \"\"daily\"\"\"\n",
		},
		{
			name:   "markdown",
			format: FormatMarkdown,
			rows:   rows,
			want:   "| id | title |\n| --- | --- |\n| 1 | Revenue |\n| 2 | Ops, \"daily\" |\n",
		},
		{
			name:   "md alias",
			format: "md",
			rows:   rows[:1],
			want:   "| id | title |\n| --- | --- |\n| 1 | Revenue |\n",
		},
		{
			name:   "json",
			format: FormatJSON,
			rows:   rows[:1],
			want:   "[\n  {\n    \"id\": \"1\",\n    \"title\": \"Revenue\"\n  }\n]\n",
		},
		{
			name:   "json without rows",
			format: FormatJSON,
			want:   "[]\n",
		},
		{
			name:   "table without rows",
			format: FormatTable,
			want:   "(0 rows)\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, renderRows(&buf, cols, tt.rows, tt.format))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestRenderRows_Table(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderRows(&buf, []string{"id", "title"}, [][]string{{"1", "Revenue"}}, ""))

	out := buf.String()
	assert.Contains(t, strings.ToUpper(out), "TITLE")
	assert.Contains(t, out, "Revenue")
	assert.True(t, strings.HasSuffix(out, "(1 rows)\n"))
}

func TestRenderRows_UnknownFormat(t *testing.T) {
	err := renderRows(&bytes.Buffer{}, []string{"id"}, nil, "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown format "xml"`)
}

func TestCheckFailed(t *testing.T) {
	require.NoError(t, checkFailed(0, 3))
	assert.EqualError(t, checkFailed(1, 3), "1 of 3 dashboards failed")
}
