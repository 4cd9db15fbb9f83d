// Package looker is a minimal client for the Looker REST API covering the
// endpoints needed to build dashboard exposures.
//
// A Session owns the credentials and HTTP plumbing: token acquisition and
// refresh, rate limiting, per-request timeouts and retries. A Client issues
// typed calls through a Session.
package looker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

// Defaults applied by Open when a Config field is zero.
const (
	DefaultAPIVersion     = "3.1"
	DefaultRequestTimeout = 30 * time.Second
	DefaultRateLimit      = 10.0
	DefaultBurst          = 5
	DefaultMaxAttempts    = 3
	DefaultBaseDelay      = 500 * time.Millisecond
	DefaultMaxDelay       = 10 * time.Second

	// maxBodyBytes caps how much of a response is read.
	maxBodyBytes = 64 << 20
)

// RetryConfig controls retries of transient failures.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Config configures a Session.
type Config struct {
	// APIURL is the API host, e.g. https://example.looker.com:19999.
	APIURL       string
	APIVersion   string
	ClientID     string
	ClientSecret string

	RequestTimeout time.Duration
	// RateLimit is the sustained request rate per second shared by all calls.
	RateLimit float64
	Burst     int
	Retry     RetryConfig

	// HTTPClient is the base client used for login and API calls.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.APIVersion == "" {
		c.APIVersion = DefaultAPIVersion
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.RateLimit <= 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.Burst <= 0 {
		c.Burst = DefaultBurst
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = DefaultMaxAttempts
	}
	if c.Retry.BaseDelay <= 0 {
		c.Retry.BaseDelay = DefaultBaseDelay
	}
	if c.Retry.MaxDelay <= 0 {
		c.Retry.MaxDelay = DefaultMaxDelay
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
}

// Session is an authenticated connection to one Looker instance. Tokens are
// acquired by Open, refreshed transparently when they expire and revoked by
// Close. A Session is safe for concurrent use.
type Session struct {
	cfg     Config
	baseURL string
	limiter *rate.Limiter
	logger  *slog.Logger

	mu sync.RWMutex
	// http is nil once the session is closed.
	http *http.Client
}

// Open exchanges the client credentials for an access token and returns a
// ready Session. The exchange is retried like any other call. A rejected
// exchange returns an error wrapping ErrAuthentication; a login that keeps
// failing for other reasons returns an *APIError wrapping ErrFetch.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	cfg.applyDefaults()

	if cfg.APIURL == "" {
		return nil, errors.New("looker api url is required")
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: client id and secret are required", ErrAuthentication)
	}

	base := strings.TrimRight(cfg.APIURL, "/") + "/api/" + cfg.APIVersion

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     base + "/login",
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst)

	var token *oauth2.Token
	attempt := 0
	err := retry.Do(ctx, newBackoff(cfg.Retry), func(ctx context.Context) error {
		attempt++
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		attemptCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
		defer cancel()

		t, err := cc.Token(context.WithValue(attemptCtx, oauth2.HTTPClient, cfg.HTTPClient))
		if err != nil {
			if ctx.Err() == nil && loginRetryable(err) {
				cfg.Logger.Debug("retrying looker login",
					slog.Int("attempt", attempt),
					slog.Any("error", err))
				return retry.RetryableError(err)
			}
			return err
		}
		token = t
		return nil
	})
	if err != nil {
		return nil, loginError(err)
	}

	cfg.Logger.Debug("authenticated with looker", slog.String("api", base))

	// The token source keeps this context for refreshes, so it must outlive
	// the caller's cancellation.
	tokenCtx := context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient, cfg.HTTPClient)
	tokens := oauth2.ReuseTokenSource(token, cc.TokenSource(tokenCtx))

	return &Session{
		cfg:     cfg,
		baseURL: base,
		limiter: limiter,
		logger:  cfg.Logger,
		http:    oauth2.NewClient(tokenCtx, tokens),
	}, nil
}

// loginRetryable reports whether a failed token exchange is transient.
// Transport errors are; HTTP responses follow retryableStatus.
func loginRetryable(err error) bool {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		return re.Response != nil && retryableStatus(re.Response.StatusCode)
	}
	return true
}

// loginError classifies a failed token exchange. Client errors other than
// rate limiting mean the credentials were rejected.
func loginError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		code := re.Response.StatusCode
		if code >= 400 && code < 500 && code != http.StatusTooManyRequests {
			return fmt.Errorf("%w: %v", ErrAuthentication, err)
		}
		return &APIError{Method: http.MethodPost, Path: "/login", StatusCode: code, Err: err}
	}
	return &APIError{Method: http.MethodPost, Path: "/login", Err: err}
}

func newBackoff(cfg RetryConfig) retry.Backoff {
	backoff := retry.NewExponential(cfg.BaseDelay)
	backoff = retry.WithCappedDuration(cfg.MaxDelay, backoff)
	backoff = retry.WithJitterPercent(20, backoff)
	return retry.WithMaxRetries(uint64(cfg.MaxAttempts-1), backoff)
}

// Close revokes the session's access token. It is safe to call more than
// once.
func (s *Session) Close(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	client := s.http
	s.http = nil
	s.mu.Unlock()
	if client == nil {
		return nil
	}

	_, err := s.send(ctx, client, http.MethodDelete, "/logout", nil, "")
	if err != nil {
		return fmt.Errorf("failed to log out of looker: %w", err)
	}
	return nil
}

// response is a fully read API response.
type response struct {
	Body        []byte
	ContentType string
}

// do issues a request with rate limiting, a per-attempt timeout and retries
// for transient failures. The body is read before the attempt's timeout
// expires. When wantType is set the response Content-Type must match it.
func (s *Session) do(ctx context.Context, method, path string, query url.Values, wantType string) (*response, error) {
	s.mu.RLock()
	client := s.http
	s.mu.RUnlock()
	if client == nil {
		return nil, &APIError{Method: method, Path: path, Err: errors.New("session closed")}
	}
	return s.send(ctx, client, method, path, query, wantType)
}

func (s *Session) send(ctx context.Context, client *http.Client, method, path string, query url.Values, wantType string) (*response, error) {
	target := s.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var resp *response
	attempt := 0
	err := retry.Do(ctx, newBackoff(s.cfg.Retry), func(ctx context.Context) error {
		attempt++
		r, err := s.attempt(ctx, client, method, target, path, wantType)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && s.retryable(ctx, apiErr) {
				s.logger.Debug("retrying looker request",
					slog.String("method", method),
					slog.String("path", path),
					slog.Int("attempt", attempt),
					slog.Any("error", err))
				return retry.RetryableError(err)
			}
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *Session) attempt(ctx context.Context, client *http.Client, method, target, path, wantType string) (*response, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, &APIError{Method: method, Path: path, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, &APIError{Method: method, Path: path, Err: err}
	}
	if wantType != "" {
		req.Header.Set("Accept", wantType)
	}

	res, err := client.Do(req)
	if err != nil {
		return nil, &APIError{Method: method, Path: path, Err: err}
	}
	defer res.Body.Close()

	// A failed read is a transport error whatever the status line said.
	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, &APIError{Method: method, Path: path, Err: fmt.Errorf("reading response body: %w", err)}
	}

	contentType := res.Header.Get("Content-Type")
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &APIError{
			Method:      method,
			Path:        path,
			StatusCode:  res.StatusCode,
			ContentType: contentType,
			Message:     errorMessage(body),
		}
	}
	if wantType != "" && !hasMediaType(contentType, wantType) {
		return nil, &APIError{
			Method:      method,
			Path:        path,
			StatusCode:  res.StatusCode,
			ContentType: contentType,
			Err:         fmt.Errorf("unexpected content type %q, want %s", contentType, wantType),
		}
	}

	return &response{Body: body, ContentType: contentType}, nil
}

// retryable reports whether a failed attempt should be retried. Failures
// caused by the caller's own cancellation never are.
func (s *Session) retryable(ctx context.Context, e *APIError) bool {
	if ctx.Err() != nil {
		return false
	}
	if e.StatusCode != 0 {
		return retryableStatus(e.StatusCode)
	}
	// Transport errors, including per-attempt timeouts.
	return e.Err != nil && e.ContentType == ""
}
