package commands

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/lookerexp/internal/exposure"
)

// NewDashboardsCommand creates the dashboards command.
func NewDashboardsCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "dashboards",
		Short: "List Looker dashboards",
		Long: `List dashboards on the Looker instance with their folder and owner.

Use the ids shown here with generate --dashboard, or the folder ids with
generate --folder. Soft-deleted dashboards are hidden unless
--include-deleted is set.`,
		Example: `  # List every dashboard
  lookerexp dashboards

  # List dashboards in folder 7 as CSV
  lookerexp dashboards --folder 7 --format csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDashboards(cmd, format)
		},
	}

	cmd.Flags().StringSlice("folder", nil, "Only list dashboards in this folder (repeatable)")
	cmd.Flags().Bool("include-deleted", false, "Include soft-deleted dashboards")
	addFormatFlag(cmd, &format)

	return cmd
}

func runDashboards(cmd *cobra.Command, format string) error {
	cc := NewCommandContext(cmd)
	ctx := cmd.Context()

	client, closeClient, err := cc.OpenClient(ctx)
	if err != nil {
		return err
	}
	defer closeClient()

	listing, err := client.ListDashboards(ctx)
	if err != nil {
		return fmt.Errorf("failed to list dashboards: %w", err)
	}
	users, err := client.FetchUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch user directory: %w", err)
	}
	owners := exposure.NewDirectory(users)

	folders := make(map[exposure.ID]struct{})
	for _, f := range cc.Cfg.FolderIDs() {
		folders[f] = struct{}{}
	}

	sort.SliceStable(listing, func(i, j int) bool { return listing[i].ID.Less(listing[j].ID) })

	rows := make([][]string, 0, len(listing))
	for _, d := range listing {
		if d.Deleted && !cc.Cfg.IncludeDeleted {
			continue
		}
		if _, ok := folders[d.FolderID]; len(folders) > 0 && !ok {
			continue
		}
		owner := "-"
		if o, ok := owners.Lookup(d.UserID); ok {
			owner = o.Email
			if o.Name != "" {
				owner = o.Name + " <" + o.Email + ">"
			}
		}
		rows = append(rows, []string{
			d.ID.String(), d.Title, d.FolderID.String(), owner, strconv.FormatBool(d.Deleted),
		})
	}

	return renderRows(cmd.OutOrStdout(), []string{"id", "title", "folder", "owner", "deleted"}, rows, format)
}
