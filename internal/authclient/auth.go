package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/SwissDataScienceCenter/rentals-gateway/internal/credentials"
	"github.com/SwissDataScienceCenter/rentals-gateway/internal/gwerrors"
	"github.com/SwissDataScienceCenter/rentals-gateway/internal/metrics"
	"github.com/SwissDataScienceCenter/rentals-gateway/internal/models"
)

const maxResponseBytes int64 = 1 << 20

// StatusError is returned when an auth endpoint answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	URL        string
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s answered with status %d", e.URL, e.StatusCode)
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type Session struct {
	Authenticated bool   `json:"authenticated"`
	Role          string `json:"role"`
}

type loginResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
	Role    string `json:"role"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type refreshResponse struct {
	Access string `json:"access"`
	// only sent when the API rotates refresh tokens
	Refresh string `json:"refresh,omitempty"`
}

// Login exchanges a username and password for a credential pair and stores it together with the
// role of the user.
func (c *Client) Login(ctx context.Context, login LoginRequest) (Session, error) {
	var tokens loginResponse
	err := c.postJSON(ctx, LoginPath, login, &tokens)
	if err != nil {
		return Session{}, err
	}
	if tokens.Access == "" || tokens.Refresh == "" {
		return Session{}, fmt.Errorf("the login response does not contain both tokens")
	}
	err = c.storeAccessToken(ctx, tokens.Access)
	if err != nil {
		return Session{}, err
	}
	err = c.credentials.Set(ctx, models.RefreshTokenKey, tokens.Refresh, models.SetOptions{})
	if err != nil {
		return Session{}, err
	}
	if tokens.Role != "" {
		err = c.credentials.Set(ctx, models.RoleKey, tokens.Role, models.SetOptions{})
		if err != nil {
			return Session{}, err
		}
	}
	slog.Info("AUTH CLIENT", "message", "logged in", "role", tokens.Role)
	return Session{Authenticated: true, Role: tokens.Role}, nil
}

// Logout forgets every stored credential.
func (c *Client) Logout(ctx context.Context) error {
	return c.ClearCredentials(ctx)
}

func (c *Client) ClearCredentials(ctx context.Context) error {
	return credentials.Clear(ctx, c.credentials)
}

// Session reports whether an access token is stored and the role recorded at login.
func (c *Client) Session(ctx context.Context) (Session, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return Session{}, err
	}
	role, err := c.credentials.Get(ctx, models.RoleKey)
	if err != nil && !errors.Is(err, gwerrors.ErrCredentialNotFound) {
		return Session{}, err
	}
	return Session{Authenticated: token != "", Role: role}, nil
}

// Refresh renews the access token now, joining a refresh that is already in flight.
// It returns gwerrors.ErrMissingCredentials when there is no refresh token to use.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	refreshToken, err := c.credentials.Get(ctx, models.RefreshTokenKey)
	if err != nil {
		if errors.Is(err, gwerrors.ErrCredentialNotFound) {
			return "", gwerrors.ErrMissingCredentials
		}
		return "", err
	}
	return c.coordinator.Refresh(ctx, func(ctx context.Context) (string, error) {
		return c.refreshSession(ctx, refreshToken)
	})
}

// refreshSession is only ever run by the refresh coordinator. The round-trip is detached from
// the cancellation of the caller that started it since other callers may be waiting on it.
func (c *Client) refreshSession(ctx context.Context, refreshToken string) (string, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.refreshTimeout)
	defer cancel()

	slog.Debug("AUTH CLIENT", "message", "refreshing the access token")
	var tokens refreshResponse
	err := c.postJSON(ctx, RefreshPath, refreshRequest{Refresh: refreshToken}, &tokens)
	if err == nil && tokens.Access == "" {
		err = fmt.Errorf("the refresh response does not contain an access token")
	}
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues(metrics.RefreshFailed).Inc()
		return "", c.expireSession(ctx, err)
	}
	err = c.storeAccessToken(ctx, tokens.Access)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues(metrics.RefreshFailed).Inc()
		return "", err
	}
	if tokens.Refresh != "" {
		err = c.credentials.Set(ctx, models.RefreshTokenKey, tokens.Refresh, models.SetOptions{})
		if err != nil {
			metrics.TokenRefreshes.WithLabelValues(metrics.RefreshFailed).Inc()
			return "", err
		}
	}
	metrics.TokenRefreshes.WithLabelValues(metrics.RefreshSucceeded).Inc()
	slog.Info("AUTH CLIENT", "message", "access token refreshed")
	return tokens.Access, nil
}

// expireSession clears the credentials and notifies the session expired handler.
func (c *Client) expireSession(ctx context.Context, cause error) error {
	err := fmt.Errorf("%w: %w", gwerrors.ErrSessionExpired, cause)
	slog.Warn("AUTH CLIENT", "message", "refreshing the access token failed, ending the session", "error", cause)
	clearErr := credentials.Clear(ctx, c.credentials)
	if clearErr != nil {
		slog.Error("AUTH CLIENT", "message", "clearing credentials failed", "error", clearErr)
	}
	metrics.SessionsExpired.Inc()
	if c.onSessionExpired != nil {
		c.onSessionExpired(ctx, err)
	}
	return err
}

func (c *Client) storeAccessToken(ctx context.Context, token string) error {
	return c.credentials.Set(ctx, models.AccessTokenKey, token, models.SetOptions{
		ExpiresAt: c.clock.Now().Add(c.accessTokenTTL),
	})
}

// postJSON posts payload to an auth endpoint and decodes a 2xx answer into out. These calls
// bypass Do: the auth endpoints never go through the refresh protocol.
func (c *Client) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	c.setRequestID(req)
	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return &StatusError{StatusCode: res.StatusCode, URL: req.URL.Path, Body: raw}
	}
	return json.Unmarshal(raw, out)
}
