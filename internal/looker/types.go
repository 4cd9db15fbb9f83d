package looker

import "github.com/leapstack-labs/lookerexp/internal/exposure"

// Wire types mirror the JSON returned by the API. They are converted to
// exposure types before leaving the package.

type apiUser struct {
	ID                     exposure.ID `json:"id"`
	FirstName              *string     `json:"first_name"`
	LastName               *string     `json:"last_name"`
	Email                  string      `json:"email"`
	VerifiedLookerEmployee bool        `json:"verified_looker_employee"`
}

func (u apiUser) toUser() exposure.User {
	return exposure.User{
		ID:                     u.ID,
		FirstName:              deref(u.FirstName),
		LastName:               deref(u.LastName),
		Email:                  u.Email,
		VerifiedLookerEmployee: u.VerifiedLookerEmployee,
	}
}

type apiFolder struct {
	ID   exposure.ID `json:"id"`
	Name string      `json:"name"`
}

type apiLook struct {
	ID      exposure.ID  `json:"id"`
	QueryID *exposure.ID `json:"query_id"`
}

type apiQuery struct {
	ID exposure.ID `json:"id"`
}

type apiElement struct {
	ID    exposure.ID `json:"id"`
	Look  *apiLook    `json:"look"`
	Query *apiQuery   `json:"query"`
}

type apiDashboard struct {
	ID       exposure.ID  `json:"id"`
	Title    string       `json:"title"`
	UserID   exposure.ID  `json:"user_id"`
	URL      string       `json:"url"`
	Folder   *apiFolder   `json:"folder"`
	Deleted  bool         `json:"deleted"`
	Elements []apiElement `json:"dashboard_elements"`
}

func (d apiDashboard) toDashboard() exposure.Dashboard {
	out := exposure.Dashboard{
		ID:      d.ID,
		Title:   d.Title,
		UserID:  d.UserID,
		URL:     d.URL,
		Deleted: d.Deleted,
	}
	if d.Folder != nil {
		out.FolderID = d.Folder.ID
	}
	for _, el := range d.Elements {
		tile := exposure.Tile{ID: el.ID}
		if el.Look != nil && el.Look.QueryID != nil {
			id := *el.Look.QueryID
			tile.LookQueryID = &id
		}
		if el.Query != nil && el.Query.ID != "" {
			id := el.Query.ID
			tile.QueryID = &id
		}
		out.Tiles = append(out.Tiles, tile)
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
