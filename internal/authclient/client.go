// Package authclient contains the HTTP client used to talk to the rental API. It injects the
// stored bearer token into every request and recovers from expired access tokens with a single
// refresh round-trip shared by all the requests that failed in the meantime.
package authclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/SwissDataScienceCenter/rentals-gateway/internal/config"
	"github.com/SwissDataScienceCenter/rentals-gateway/internal/credentials"
	"github.com/SwissDataScienceCenter/rentals-gateway/internal/gwerrors"
	"github.com/SwissDataScienceCenter/rentals-gateway/internal/metrics"
	"github.com/SwissDataScienceCenter/rentals-gateway/internal/models"
	"github.com/jonboulle/clockwork"
)

const (
	LoginPath   string = "/login/"
	RefreshPath string = "/token/refresh/"

	HeaderRequestID string = "X-Request-ID"
)

const (
	defaultAccessTokenTTL time.Duration = 7 * 24 * time.Hour
	defaultRefreshTimeout time.Duration = 30 * time.Second
	defaultRequestTimeout time.Duration = 30 * time.Second
	// how much of a discarded response body is drained so the connection can be reused
	maxDrainBytes int64 = 64 << 10
	// request bodies are buffered in memory so that they can be sent again after a refresh
	defaultMaxBodyBytes int64 = 10 << 20
)

// SessionExpiredFunc is called once per failed refresh, after the credentials were cleared.
// The hosting application uses it to send the user back to the login page.
type SessionExpiredFunc func(ctx context.Context, err error)

type retriedKeyType struct{}

var retriedKey = retriedKeyType{}

func markRetried(req *http.Request) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), retriedKey, true))
}

func isRetried(req *http.Request) bool {
	retried, _ := req.Context().Value(retriedKey).(bool)
	return retried
}

// refreshEligible reports whether a 401 on this URL may trigger a refresh. The auth endpoints
// themselves never do. Only the path is matched, a query string mentioning an auth endpoint
// (e.g. ?next=/login/) does not make a resource an auth endpoint.
func refreshEligible(u *url.URL) bool {
	return !strings.Contains(u.Path, LoginPath) && !strings.Contains(u.Path, RefreshPath)
}

type Client struct {
	baseURL          *url.URL
	httpClient       *http.Client
	credentials      credentials.Store
	coordinator      *RefreshCoordinator
	accessTokenTTL   time.Duration
	refreshTimeout   time.Duration
	clock            clockwork.Clock
	idGenerator      models.IDGenerator
	onSessionExpired SessionExpiredFunc
	maxBodyBytes     int64
}

// Do sends the request with the stored access token. A 401 answer is recovered transparently
// by refreshing the access token and resending the request once. Non-2xx answers are returned
// as responses, like http.Client does; an error is only returned when the request could not be
// completed, or when the session expired (wrapping gwerrors.ErrSessionExpired).
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	req, err := replayable(req, c.maxBodyBytes)
	if err != nil {
		return nil, err
	}
	token, err := c.accessToken(req.Context())
	if err != nil {
		return nil, err
	}
	res, err := c.send(req, token)
	if err != nil {
		return nil, err
	}
	return c.onResponse(req, res, token)
}

// RoundTrip makes the client usable as the transport of a plain http.Client.
func (c *Client) RoundTrip(req *http.Request) (*http.Response, error) {
	return c.Do(req)
}

func (c *Client) onResponse(req *http.Request, res *http.Response, sentToken string) (*http.Response, error) {
	if res.StatusCode != http.StatusUnauthorized || isRetried(req) {
		return res, nil
	}
	if !refreshEligible(req.URL) {
		return res, nil
	}
	ctx := req.Context()
	refreshToken, err := c.credentials.Get(ctx, models.RefreshTokenKey)
	if err != nil && !errors.Is(err, gwerrors.ErrCredentialNotFound) {
		discard(res)
		return nil, fmt.Errorf("reading the refresh token: %w", err)
	}
	if refreshToken == "" {
		slog.Info("AUTH CLIENT", "message", "no refresh token available, clearing credentials", "url", req.URL.Path)
		metrics.TokenRefreshes.WithLabelValues(metrics.RefreshSkipped).Inc()
		err = credentials.Clear(ctx, c.credentials)
		if err != nil {
			slog.Error("AUTH CLIENT", "message", "clearing credentials failed", "error", err)
		}
		return res, nil
	}
	discard(res)

	newToken, err := c.coordinator.Refresh(ctx, func(ctx context.Context) (string, error) {
		// A refresh that completed while this request was in flight already replaced the token
		current, err := c.accessToken(ctx)
		if err == nil && current != "" && current != sentToken {
			slog.Debug("AUTH CLIENT", "message", "access token changed while the request was in flight", "url", req.URL.Path)
			return current, nil
		}
		return c.refreshSession(ctx, refreshToken)
	})
	if err != nil {
		return nil, err
	}
	return c.send(markRetried(req), newToken)
}

// send issues a copy of req carrying the token, the original request is never modified.
func (c *Client) send(req *http.Request, token string) (*http.Response, error) {
	out := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		out.Body = body
	}
	if token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	}
	if out.Header.Get(HeaderRequestID) == "" {
		c.setRequestID(out)
	}
	return c.httpClient.Do(out)
}

func (c *Client) setRequestID(req *http.Request) {
	id, err := c.idGenerator.ID()
	if err != nil {
		slog.Debug("AUTH CLIENT", "message", "generating a request ID failed", "error", err)
		return
	}
	req.Header.Set(HeaderRequestID, id)
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	token, err := c.credentials.Get(ctx, models.AccessTokenKey)
	if err != nil {
		if errors.Is(err, gwerrors.ErrCredentialNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("reading the access token: %w", err)
	}
	return token, nil
}

// replayable makes sure the request body can be read more than once. Bodies larger than
// maxBytes are rejected with gwerrors.ErrRequestBodyTooLarge.
func replayable(req *http.Request, maxBytes int64) (*http.Request, error) {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return req, nil
	}
	if req.ContentLength > maxBytes {
		_ = req.Body.Close()
		return nil, fmt.Errorf("%w: %d bytes", gwerrors.ErrRequestBodyTooLarge, req.ContentLength)
	}
	body, err := io.ReadAll(io.LimitReader(req.Body, maxBytes+1))
	closeErr := req.Body.Close()
	if err != nil {
		return nil, err
	}
	if closeErr != nil {
		return nil, closeErr
	}
	if int64(len(body)) > maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", gwerrors.ErrRequestBodyTooLarge, maxBytes)
	}
	out := req.Clone(req.Context())
	out.ContentLength = int64(len(body))
	out.Body = io.NopCloser(bytes.NewReader(body))
	out.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	return out, nil
}

func discard(res *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, maxDrainBytes))
	_ = res.Body.Close()
}

func (c *Client) endpoint(path string) string {
	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawPath = ""
	u.RawQuery = ""
	return u.String()
}

// BaseURL returns a copy of the rental API base URL.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

type ClientOption func(*Client) error

func WithBaseURL(baseURL *url.URL) ClientOption {
	return func(c *Client) error {
		if baseURL == nil {
			return fmt.Errorf("the base URL cannot be nil")
		}
		u := *baseURL
		c.baseURL = &u
		return nil
	}
}

func WithConfig(backendConfig config.BackendConfig) ClientOption {
	return func(c *Client) error {
		err := WithBaseURL(backendConfig.BaseURL)(c)
		if err != nil {
			return err
		}
		if backendConfig.RequestTimeoutSeconds > 0 {
			c.httpClient = &http.Client{Timeout: backendConfig.RequestTimeout()}
		}
		if backendConfig.RefreshTimeoutSeconds > 0 {
			c.refreshTimeout = backendConfig.RefreshTimeout()
		}
		if backendConfig.AccessTokenTTLHours > 0 {
			c.accessTokenTTL = backendConfig.AccessTokenTTL()
		}
		return nil
	}
}

func WithCredentialStore(store credentials.Store) ClientOption {
	return func(c *Client) error {
		c.credentials = store
		return nil
	}
}

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) error {
		c.httpClient = httpClient
		return nil
	}
}

func WithSessionExpiredHandler(handler SessionExpiredFunc) ClientOption {
	return func(c *Client) error {
		c.onSessionExpired = handler
		return nil
	}
}

func WithAccessTokenTTL(ttl time.Duration) ClientOption {
	return func(c *Client) error {
		if ttl <= 0 {
			return fmt.Errorf("invalid value for the access token TTL (%s)", ttl)
		}
		c.accessTokenTTL = ttl
		return nil
	}
}

func WithRefreshTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) error {
		if timeout <= 0 {
			return fmt.Errorf("invalid value for the refresh timeout (%s)", timeout)
		}
		c.refreshTimeout = timeout
		return nil
	}
}

func WithClock(clock clockwork.Clock) ClientOption {
	return func(c *Client) error {
		c.clock = clock
		return nil
	}
}

// WithMaxBodyBytes caps the request bodies the client buffers for a resend.
func WithMaxBodyBytes(maxBytes int64) ClientOption {
	return func(c *Client) error {
		if maxBytes <= 0 {
			return fmt.Errorf("the request body limit must be positive, got %d", maxBytes)
		}
		c.maxBodyBytes = maxBytes
		return nil
	}
}

func WithRequestIDGenerator(generator models.IDGenerator) ClientOption {
	return func(c *Client) error {
		c.idGenerator = generator
		return nil
	}
}

// NewClient creates a new authenticated client. Each client owns its refresh coordinator.
func NewClient(options ...ClientOption) (*Client, error) {
	c := Client{
		httpClient:     &http.Client{Timeout: defaultRequestTimeout},
		coordinator:    NewRefreshCoordinator(),
		accessTokenTTL: defaultAccessTokenTTL,
		refreshTimeout: defaultRefreshTimeout,
		clock:          clockwork.NewRealClock(),
		idGenerator:    models.ULIDGenerator{},
		maxBodyBytes:   defaultMaxBodyBytes,
	}
	for _, opt := range options {
		err := opt(&c)
		if err != nil {
			return &Client{}, err
		}
	}
	if c.baseURL == nil {
		return &Client{}, fmt.Errorf("the rental API base URL is not set")
	}
	if c.credentials == nil {
		return &Client{}, fmt.Errorf("credential store not initialized")
	}
	if c.httpClient == nil {
		return &Client{}, fmt.Errorf("http client not initialized")
	}
	return &c, nil
}
