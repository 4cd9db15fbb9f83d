package config

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/leapstack-labs/lookerexp/internal/exposure"
)

// Validate checks settings every command relies on.
func (c *Config) Validate() error {
	var errs []error

	if _, err := exposure.ParsePolicy(string(c.Policy)); err != nil {
		errs = append(errs, err)
	}
	if c.Concurrency.Dashboards < 1 {
		errs = append(errs, fmt.Errorf("concurrency.dashboards must be at least 1, got %d", c.Concurrency.Dashboards))
	}
	if c.Concurrency.Queries < 1 {
		errs = append(errs, fmt.Errorf("concurrency.queries must be at least 1, got %d", c.Concurrency.Queries))
	}
	if c.RateLimit.RPS <= 0 {
		errs = append(errs, fmt.Errorf("rate_limit.rps must be positive, got %g", c.RateLimit.RPS))
	}
	if c.RateLimit.Burst < 1 {
		errs = append(errs, fmt.Errorf("rate_limit.burst must be at least 1, got %d", c.RateLimit.Burst))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts))
	}
	if c.Retry.BaseDelay <= 0 || c.Retry.MaxDelay < c.Retry.BaseDelay {
		errs = append(errs, fmt.Errorf("retry delays must satisfy 0 < base_delay <= max_delay, got %s and %s", c.Retry.BaseDelay, c.Retry.MaxDelay))
	}
	if c.Timeouts.Request <= 0 {
		errs = append(errs, fmt.Errorf("timeouts.request must be positive, got %s", c.Timeouts.Request))
	}
	if c.Timeouts.Batch < 0 {
		errs = append(errs, fmt.Errorf("timeouts.batch must not be negative, got %s", c.Timeouts.Batch))
	}
	if c.LogFormat != LogFormatText && c.LogFormat != LogFormatJSON {
		errs = append(errs, fmt.Errorf("log_format must be %q or %q, got %q", LogFormatText, LogFormatJSON, c.LogFormat))
	}

	return errors.Join(errs...)
}

// ValidateConnection checks the settings needed to talk to Looker.
func (c *Config) ValidateConnection() error {
	var errs []error

	if c.BaseURL == "" {
		errs = append(errs, errors.New("base_url is required\nHint: set it in lookerexp.yaml, LOOKEREXP_BASE_URL or --base-url"))
	} else if !isAbsoluteURL(c.BaseURL) {
		errs = append(errs, fmt.Errorf("base_url %q must be an absolute http(s) URL", c.BaseURL))
	}
	if c.APIURL != "" && !isAbsoluteURL(c.APIURL) {
		errs = append(errs, fmt.Errorf("api_url %q must be an absolute http(s) URL", c.APIURL))
	}
	if c.ClientID == "" || c.ClientSecret == "" {
		errs = append(errs, errors.New("client_id and client_secret are required\nHint: export LOOKER_CLIENT_ID and LOOKER_CLIENT_SECRET"))
	}

	return errors.Join(errs...)
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
