package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/SwissDataScienceCenter/rentals-gateway/internal/authclient"
	"github.com/SwissDataScienceCenter/rentals-gateway/internal/gwerrors"
	"github.com/labstack/echo/v4"
)

type sessionExpiredResponse struct {
	Message  string `json:"message"`
	Redirect string `json:"redirect"`
}

// sessionClient returns the authenticated client of the browser session. Requests without a
// session get the anonymous client.
func (g *Gateway) sessionClient(c echo.Context) (AuthenticatedClient, error) {
	session, err := g.sessions.Get(c)
	if err != nil {
		if errors.Is(err, gwerrors.ErrSessionNotFound) {
			return g.anonymous, nil
		}
		return nil, err
	}
	return g.clients.get(session.ID)
}

func (g *Gateway) login(c echo.Context) error {
	var login authclient.LoginRequest
	err := c.Bind(&login)
	if err != nil {
		return err
	}
	if login.Username == "" || login.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "username and password are required")
	}
	// A login always starts a new session, the previous one is dropped with its credentials
	err = g.endSession(c)
	if err != nil {
		return err
	}
	session, err := g.sessions.Create(c)
	if err != nil {
		return err
	}
	client, err := g.clients.get(session.ID)
	if err != nil {
		return err
	}
	result, err := client.Login(c.Request().Context(), login)
	if err != nil {
		endErr := g.endSession(c)
		if endErr != nil {
			slog.Info("GATEWAY", "message", "could not drop the session of a failed login", "error", endErr, "requestID", requestID(c))
		}
		var statusErr *authclient.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode < 500 {
			slog.Info("GATEWAY", "message", "login rejected", "status", statusErr.StatusCode, "requestID", requestID(c))
			if json.Valid(statusErr.Body) {
				return c.JSONBlob(statusErr.StatusCode, statusErr.Body)
			}
			return echo.NewHTTPError(statusErr.StatusCode, http.StatusText(statusErr.StatusCode))
		}
		return g.clientError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"role": result.Role})
}

func (g *Gateway) logout(c echo.Context) error {
	err := g.endSession(c)
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// endSession wipes the credentials of the current session, if any, and deletes it.
func (g *Gateway) endSession(c echo.Context) error {
	session, err := g.sessions.Get(c)
	if errors.Is(err, gwerrors.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	client, err := g.clients.get(session.ID)
	if err != nil {
		return err
	}
	err = client.Logout(c.Request().Context())
	if err != nil {
		return err
	}
	err = g.clients.forget(c.Request().Context(), session.ID)
	if err != nil {
		return err
	}
	return g.sessions.Delete(c)
}

func (g *Gateway) session(c echo.Context) error {
	client, err := g.sessionClient(c)
	if err != nil {
		return err
	}
	session, err := client.Session(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, session)
}

// clientError turns an error of the authenticated client into a response. An expired session
// sends the user back to the login page.
func (g *Gateway) clientError(c echo.Context, err error) error {
	if errors.Is(err, gwerrors.ErrSessionExpired) {
		endErr := g.endSession(c)
		if endErr != nil {
			slog.Info("GATEWAY", "message", "could not drop the expired session", "error", endErr, "requestID", requestID(c))
		}
		loginPath := g.config.LoginRedirectPath
		if wantsHTML(c.Request()) {
			return c.Redirect(http.StatusFound, loginPath)
		}
		return c.JSON(http.StatusUnauthorized, sessionExpiredResponse{
			Message:  "the session has expired, please log in again",
			Redirect: loginPath,
		})
	}
	if errors.Is(err, gwerrors.ErrRequestBodyTooLarge) {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge).SetInternal(err)
	}
	// the body limit middleware fails the read of a streamed body
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	slog.Error("GATEWAY", "message", "request to the rental API failed", "error", err, "requestID", requestID(c))
	return echo.NewHTTPError(http.StatusBadGateway, "the rental API could not be reached").SetInternal(err)
}

func wantsHTML(req *http.Request) bool {
	return strings.Contains(req.Header.Get(echo.HeaderAccept), echo.MIMETextHTML)
}
