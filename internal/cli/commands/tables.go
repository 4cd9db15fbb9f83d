package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/lookerexp/internal/lineage"
	"github.com/leapstack-labs/lookerexp/internal/manifest"
)

// NewTablesCommand creates the tables command.
func NewTablesCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "tables [file|-]",
		Short: "Extract qualified table references from SQL",
		Long: `Run the table extractor on SQL text without contacting Looker.

Only database.schema.table references following FROM or JOIN are reported.
Reads standard input when no file is given or the file is "-".`,
		Example: `  # Inspect a saved query
  lookerexp tables query.sql

  # Pipe SQL in
  echo "select * from db.sales.orders" | lookerexp tables`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTables(cmd, args, format)
		},
	}
	addFormatFlag(cmd, &format)

	return cmd
}

func runTables(cmd *cobra.Command, args []string, format string) error {
	sql, err := readSQL(cmd, args)
	if err != nil {
		return err
	}

	refs := lineage.ExtractQualified(sql)
	rows := make([][]string, 0, len(refs))
	for _, r := range refs {
		rows = append(rows, []string{r.Table, r.Schema, r.Database, manifest.Ref(r.Table)})
	}
	return renderRows(cmd.OutOrStdout(), []string{"table", "schema", "database", "ref"}, rows, format)
}

func readSQL(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	return string(data), nil
}
