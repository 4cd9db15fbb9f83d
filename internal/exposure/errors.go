package exposure

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingOwner is returned when a dashboard's user id is not in the
// directory, either because the user does not exist or because it is a
// Looker support account.
var ErrMissingOwner = errors.New("dashboard owner not found in user directory")

// MissingOwnerError identifies the dashboard and user behind ErrMissingOwner.
type MissingOwnerError struct {
	DashboardID ID
	UserID      ID
}

func (e *MissingOwnerError) Error() string {
	return fmt.Sprintf("dashboard %s: user %q: %v", e.DashboardID, e.UserID, ErrMissingOwner)
}

func (e *MissingOwnerError) Unwrap() error { return ErrMissingOwner }

// QueryError reports a failure fetching or resolving a single query.
type QueryError struct {
	QueryID ID
	Err     error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %s: %v", e.QueryID, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// DashboardError reports why a dashboard produced no exposure. QueryID is
// set when the failure came from a specific query.
type DashboardError struct {
	DashboardID ID
	QueryID     ID
	Err         error
}

// NewDashboardError wraps err, lifting the failing query id out of a
// QueryError when present.
func NewDashboardError(dashboardID ID, err error) *DashboardError {
	de := &DashboardError{DashboardID: dashboardID, Err: err}
	var qe *QueryError
	if errors.As(err, &qe) {
		de.QueryID = qe.QueryID
	}
	return de
}

// Error includes the failing query through the wrapped QueryError.
func (e *DashboardError) Error() string {
	return fmt.Sprintf("dashboard %s: %v", e.DashboardID, e.Err)
}

func (e *DashboardError) Unwrap() error { return e.Err }

// FailurePolicy decides how fetch failures propagate.
type FailurePolicy string

const (
	// PolicyDegrade drops failed queries and keeps the dashboard with the
	// tables that could be resolved. Dashboard-level failures are reported
	// and the batch continues.
	PolicyDegrade FailurePolicy = "degrade"
	// PolicySkip fails a dashboard when any of its queries fails. The
	// dashboard is reported and the batch continues.
	PolicySkip FailurePolicy = "skip"
	// PolicyAbort stops the whole batch on the first failure.
	PolicyAbort FailurePolicy = "abort"
)

// DefaultPolicy is used when no policy is configured.
const DefaultPolicy = PolicySkip

// ParsePolicy parses a policy name. The empty string yields DefaultPolicy.
func ParsePolicy(s string) (FailurePolicy, error) {
	switch p := FailurePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return DefaultPolicy, nil
	case PolicyDegrade, PolicySkip, PolicyAbort:
		return p, nil
	default:
		return "", fmt.Errorf("unknown failure policy %q (want degrade, skip or abort)", s)
	}
}

// UnmarshalText implements encoding.TextUnmarshaler for config decoding.
func (p *FailurePolicy) UnmarshalText(text []byte) error {
	parsed, err := ParsePolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

func (p FailurePolicy) String() string { return string(p) }
