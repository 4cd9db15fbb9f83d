// Package lookertest provides an in-process Looker API 3.1 for tests.
//
// The instance serves three users (Ada, a user without a name and a verified
// Looker support account), four dashboards and a handful of queries:
//
//	100 "Revenue"   owner 1, folder 7, queries 10 and 11
//	101 "Old"       owner 1, folder 7, deleted
//	200 "Ops"       owner 2, folder 8, query 12 (no qualified tables)
//	300 "Support"   owner 3, folder 8, query 10
package lookertest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

// Credentials accepted by the login endpoint, and the issued token.
const (
	ClientID     = "id"
	ClientSecret = "secret"
	Token        = "tok-123"
)

// Server is an httptest-backed Looker API.
type Server struct {
	*httptest.Server

	Logins      atomic.Int32
	Logouts     atomic.Int32
	SQLAttempts atomic.Int32

	// LoginFailures makes the first n logins return 503.
	LoginFailures int32
	// SQLFailures makes the first n SQL fetches return 503.
	SQLFailures int32
	// SQLTruncations makes the n SQL fetches after SQLFailures announce a
	// longer body than they send, so the connection drops mid-body.
	SQLTruncations int32
}

var sqlByQuery = map[string]string{
	"10": "select * from a.b.orders",
	"11": "select * from a.b.customers join a.b.orders",
	"12": "select 1",
}

var dashboardsByID = map[string]string{
	"100": `{
		"id": "100", "title": "Revenue", "user_id": 1, "url": "/dashboards/100",
		"folder": {"id": "7"},
		"dashboard_elements": [
			{"id": "1", "look": {"id": 5, "query_id": 10}, "query": null},
			{"id": "2", "look": null, "query": {"id": 11}},
			{"id": "3", "look": null, "query": null}
		]
	}`,
	"101": `{"id": "101", "title": "Old", "user_id": 1, "folder": {"id": "7"}, "deleted": true, "dashboard_elements": []}`,
	"200": `{
		"id": "200", "title": "Ops", "user_id": 2, "url": "/dashboards/200",
		"folder": {"id": "8"},
		"dashboard_elements": [{"id": "4", "query": {"id": 12}}]
	}`,
	"300": `{
		"id": "300", "title": "Support", "user_id": 3, "url": "/dashboards/300",
		"folder": {"id": "8"},
		"dashboard_elements": [{"id": "5", "query": {"id": 10}}]
	}`,
}

// NewServer starts a fake Looker and registers its shutdown with t.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{}
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/3.1/login", func(w http.ResponseWriter, r *http.Request) {
		if n := s.Logins.Add(1); n <= s.LoginFailures {
			WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"message": "try later"})
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("client_id") != ClientID || r.PostForm.Get("client_secret") != ClientSecret {
			WriteJSON(w, http.StatusNotFound, map[string]string{"message": "Not found"})
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"access_token": Token,
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})

	mux.HandleFunc("DELETE /api/3.1/logout", s.authed(func(w http.ResponseWriter, _ *http.Request) {
		s.Logouts.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))

	mux.HandleFunc("GET /api/3.1/users", s.authed(func(w http.ResponseWriter, _ *http.Request) {
		writeRaw(w, `[
			{"id": 1, "first_name": "Ada", "last_name": "Lovelace", "email": "ada@example.com", "verified_looker_employee": false},
			{"id": 2, "first_name": null, "last_name": null, "email": "new@example.com", "verified_looker_employee": false},
			{"id": 3, "first_name": "Looker", "last_name": "Support", "email": "help@looker.com", "verified_looker_employee": true}
		]`)
	}))

	mux.HandleFunc("GET /api/3.1/dashboards", s.authed(func(w http.ResponseWriter, _ *http.Request) {
		writeRaw(w, `[
			{"id": "100", "title": "Revenue", "user_id": 1, "folder": {"id": "7", "name": "Finance"}},
			{"id": "101", "title": "Old", "user_id": 1, "folder": {"id": "7", "name": "Finance"}, "deleted": true},
			{"id": "200", "title": "Ops", "user_id": 2, "folder": {"id": "8", "name": "Ops"}},
			{"id": "300", "title": "Support", "user_id": 3, "folder": {"id": "8", "name": "Ops"}}
		]`)
	}))

	mux.HandleFunc("GET /api/3.1/dashboards/{id}", s.authed(func(w http.ResponseWriter, r *http.Request) {
		body, ok := dashboardsByID[r.PathValue("id")]
		if !ok {
			WriteJSON(w, http.StatusNotFound, map[string]string{"message": "Not found"})
			return
		}
		writeRaw(w, body)
	}))

	mux.HandleFunc("GET /api/3.1/queries/{id}/run/sql", s.authed(func(w http.ResponseWriter, r *http.Request) {
		n := s.SQLAttempts.Add(1)
		if n <= s.SQLFailures {
			WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"message": "try later"})
			return
		}
		if n <= s.SQLFailures+s.SQLTruncations {
			w.Header().Set("Content-Type", "application/sql")
			w.Header().Set("Content-Length", "1024")
			_, _ = w.Write([]byte("select"))
			return
		}
		id := r.PathValue("id")
		if id == "json" {
			WriteJSON(w, http.StatusOK, map[string]string{"error": "not sql"})
			return
		}
		sql, ok := sqlByQuery[id]
		if !ok {
			WriteJSON(w, http.StatusNotFound, map[string]string{"message": "Not found"})
			return
		}
		w.Header().Set("Content-Type", "application/sql")
		_, _ = w.Write([]byte(sql))
	}))

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (s *Server) authed(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+Token {
			WriteJSON(w, http.StatusUnauthorized, map[string]string{"message": "Requires authentication."})
			return
		}
		h(w, r)
	}
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, _ = w.Write([]byte(body))
}
