package looker

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAuthentication is returned when the credential exchange is rejected.
	ErrAuthentication = errors.New("looker authentication failed")
	// ErrFetch wraps every failed API call: transport errors, non-2xx
	// statuses and unexpected content types.
	ErrFetch = errors.New("looker fetch failed")
)

// APIError describes a failed API call.
type APIError struct {
	Method      string
	Path        string
	StatusCode  int
	ContentType string
	// Message is the "message" field of a Looker error body, if any.
	Message string
	Err     error
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", e.Method, e.Path)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap exposes both ErrFetch and the underlying cause.
func (e *APIError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrFetch}
	}
	return []error{ErrFetch, e.Err}
}

// retryableStatus reports whether a response status is worth retrying.
func retryableStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
