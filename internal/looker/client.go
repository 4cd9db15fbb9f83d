package looker

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/leapstack-labs/lookerexp/internal/exposure"
)

const (
	mediaJSON = "application/json"
	mediaSQL  = "application/sql"
)

// Field lists requested from Looker to keep payloads small.
const (
	userFields          = "id,first_name,last_name,email,verified_looker_employee"
	dashboardListFields = "id,title,user_id,folder,deleted"
	dashboardFields     = "id,title,user_id,url,folder,deleted,dashboard_elements"
)

// Client issues typed Looker API calls through a Session. It implements
// exposure.Source.
type Client struct {
	session *Session
}

var _ exposure.Source = (*Client)(nil)

// NewClient returns a Client bound to session.
func NewClient(session *Session) *Client {
	return &Client{session: session}
}

// FetchUsers returns every user visible to the session.
func (c *Client) FetchUsers(ctx context.Context) ([]exposure.User, error) {
	var raw []apiUser
	if err := c.getJSON(ctx, "/users", url.Values{"fields": {userFields}}, &raw); err != nil {
		return nil, err
	}

	users := make([]exposure.User, 0, len(raw))
	for _, u := range raw {
		users = append(users, u.toUser())
	}
	return users, nil
}

// FetchDashboard returns one dashboard with its tiles.
func (c *Client) FetchDashboard(ctx context.Context, id exposure.ID) (exposure.Dashboard, error) {
	var raw apiDashboard
	path := "/dashboards/" + url.PathEscape(id.String())
	if err := c.getJSON(ctx, path, url.Values{"fields": {dashboardFields}}, &raw); err != nil {
		return exposure.Dashboard{}, err
	}
	return raw.toDashboard(), nil
}

// ListDashboards returns summaries of every dashboard, without tiles.
func (c *Client) ListDashboards(ctx context.Context) ([]exposure.Dashboard, error) {
	var raw []apiDashboard
	if err := c.getJSON(ctx, "/dashboards", url.Values{"fields": {dashboardListFields}}, &raw); err != nil {
		return nil, err
	}

	dashboards := make([]exposure.Dashboard, 0, len(raw))
	for _, d := range raw {
		dashboards = append(dashboards, d.toDashboard())
	}
	return dashboards, nil
}

// FetchQuerySQL returns the SQL Looker generates for a query. Responses that
// are not application/sql are rejected.
func (c *Client) FetchQuerySQL(ctx context.Context, id exposure.ID) (string, error) {
	path := "/queries/" + url.PathEscape(id.String()) + "/run/sql"
	resp, err := c.session.do(ctx, http.MethodGet, path, nil, mediaSQL)
	if err != nil {
		return "", err
	}
	return string(resp.Body), nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, v any) error {
	resp, err := c.session.do(ctx, http.MethodGet, path, query, mediaJSON)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return &APIError{
			Method:      http.MethodGet,
			Path:        path,
			ContentType: resp.ContentType,
			Err:         fmt.Errorf("malformed response: %w", err),
		}
	}
	return nil
}

// hasMediaType reports whether a Content-Type header names want, ignoring
// parameters such as charset.
func hasMediaType(header, want string) bool {
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return false
	}
	return strings.EqualFold(mt, want)
}

// errorMessage extracts the message from a Looker error body.
func errorMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Message != "" {
		return e.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	return msg
}
