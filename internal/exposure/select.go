package exposure

// Selection chooses which dashboards a batch covers.
type Selection struct {
	// DashboardIDs are always included, deleted or not.
	DashboardIDs []ID
	// FolderIDs include every dashboard listed in these folders.
	FolderIDs []ID
	// IncludeDeleted keeps soft-deleted dashboards found through folders.
	IncludeDeleted bool
}

// Empty reports whether the selection names nothing.
func (s Selection) Empty() bool {
	return len(s.DashboardIDs) == 0 && len(s.FolderIDs) == 0
}

// Resolve expands the selection against a dashboard listing and returns the
// ids to build: explicit ids first in the given order, then folder matches
// sorted by id. Duplicates are dropped.
func (s Selection) Resolve(listing []Dashboard) []ID {
	seen := make(map[ID]struct{}, len(s.DashboardIDs))
	ids := make([]ID, 0, len(s.DashboardIDs))
	for _, id := range s.DashboardIDs {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	if len(s.FolderIDs) == 0 {
		return ids
	}
	folders := make(map[ID]struct{}, len(s.FolderIDs))
	for _, f := range s.FolderIDs {
		folders[f] = struct{}{}
	}

	var matched []ID
	for _, d := range listing {
		if _, ok := folders[d.FolderID]; !ok {
			continue
		}
		if d.Deleted && !s.IncludeDeleted {
			continue
		}
		if _, ok := seen[d.ID]; ok {
			continue
		}
		seen[d.ID] = struct{}{}
		matched = append(matched, d.ID)
	}
	SortIDs(matched)
	return append(ids, matched...)
}
