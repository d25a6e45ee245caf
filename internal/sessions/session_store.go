package sessions

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/SwissDataScienceCenter/rentals-gateway/internal/config"
	"github.com/SwissDataScienceCenter/rentals-gateway/internal/credentials"
	"github.com/SwissDataScienceCenter/rentals-gateway/internal/gwerrors"
	"github.com/SwissDataScienceCenter/rentals-gateway/internal/models"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
)

type SessionStore struct {
	cookieTemplate        func() http.Cookie
	idGenerator           models.IDGenerator
	idleSessionTTLSeconds int
	maxSessionTTLSeconds  int
	sessionRepo           SessionRepository
	clock                 clockwork.Clock
}

// Middleware loads the session of the request into the echo context and saves it, touched,
// once the handler is done.
func (sessions *SessionStore) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			session, loadErr := sessions.Get(c)
			if loadErr != nil {
				if !errors.Is(loadErr, gwerrors.ErrSessionNotFound) {
					slog.Info(
						"SESSION MIDDLEWARE",
						"message",
						"could not load session",
						"error",
						loadErr,
						"requestID",
						requestID(c),
					)
				}
				session = nil
			}
			c.Set(SessionCtxKey, session)
			err := next(c)
			saveErr := sessions.Save(c)
			if saveErr != nil {
				slog.Info(
					"SESSION MIDDLEWARE",
					"message",
					"could not save session",
					"error",
					saveErr,
					"requestID",
					requestID(c),
				)
			}
			return err
		}
	}
}

// getFromContext retrieves a session from the current context
func (sessions *SessionStore) getFromContext(c echo.Context) (*Session, error) {
	session, ok := c.Get(SessionCtxKey).(*Session)
	if !ok || session == nil {
		return nil, gwerrors.ErrSessionNotFound
	}
	if session.Expired(sessions.clock.Now()) {
		return nil, gwerrors.ErrSessionNotFound
	}
	return session, nil
}

// Get returns the session of the request, touched. Requests without a cookie or with a cookie
// pointing to an unknown or expired session get gwerrors.ErrSessionNotFound.
func (sessions *SessionStore) Get(c echo.Context) (*Session, error) {
	session, err := sessions.getFromContext(c)
	if err == nil {
		return session, nil
	}

	cookie, err := c.Cookie(SessionCookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return nil, gwerrors.ErrSessionNotFound
		}
		return nil, err
	}
	if credentials.ValidateSessionID(cookie.Value) != nil {
		return nil, gwerrors.ErrSessionNotFound
	}

	sessionFromStore, err := sessions.sessionRepo.GetSession(c.Request().Context(), cookie.Value)
	if err != nil {
		return nil, err
	}
	session = &sessionFromStore
	now := sessions.clock.Now()
	if session.Expired(now) {
		err = sessions.sessionRepo.RemoveSession(c.Request().Context(), session.ID)
		if err != nil {
			slog.Info("SESSION MIDDLEWARE", "message", "could not remove expired session", "error", err)
		}
		return nil, gwerrors.ErrSessionNotFound
	}
	session.Touch(now)
	return session, nil
}

// Create starts a new session, saves it and sets its cookie on the response.
func (sessions *SessionStore) Create(c echo.Context) (*Session, error) {
	id, err := sessions.idGenerator.ID()
	if err != nil {
		return nil, err
	}
	now := sessions.clock.Now().UTC()
	session := Session{
		ID:             id,
		CreatedAt:      now,
		IdleTTLSeconds: sessions.idleSessionTTLSeconds,
		MaxTTLSeconds:  sessions.maxSessionTTLSeconds,
	}
	session.Touch(now)
	err = sessions.sessionRepo.SetSession(c.Request().Context(), session)
	if err != nil {
		return nil, err
	}
	slog.Info("SESSION MIDDLEWARE", "message", "new session", "sessionID", session.ID, "requestID", requestID(c))
	c.Set(SessionCtxKey, &session)
	cookie := sessions.Cookie(session)
	c.SetCookie(&cookie)
	return &session, nil
}

func (sessions *SessionStore) Save(c echo.Context) error {
	session, err := sessions.getFromContext(c)
	if err != nil {
		return nil
	}
	return sessions.sessionRepo.SetSession(c.Request().Context(), *session)
}

// Delete removes the session of the request and tells the browser to drop the cookie.
func (sessions *SessionStore) Delete(c echo.Context) error {
	sessionID := ""
	if session, err := sessions.getFromContext(c); err == nil {
		sessionID = session.ID
	} else if cookie, err := c.Cookie(SessionCookieName); err == nil {
		sessionID = cookie.Value
	}

	newCookie := sessions.cookieTemplate()
	newCookie.MaxAge = -1
	c.SetCookie(&newCookie)

	c.Set(SessionCtxKey, (*Session)(nil))

	if sessionID == "" {
		return nil
	}
	return sessions.sessionRepo.RemoveSession(c.Request().Context(), sessionID)
}

func (sessions *SessionStore) Cookie(session Session) http.Cookie {
	cookie := sessions.cookieTemplate()
	cookie.Value = session.ID
	return cookie
}

func requestID(c echo.Context) string {
	return c.Response().Header().Get(echo.HeaderXRequestID)
}

type SessionStoreOption func(*SessionStore) error

func WithSessionRepository(repo SessionRepository) SessionStoreOption {
	return func(sessions *SessionStore) error {
		sessions.sessionRepo = repo
		return nil
	}
}

func WithConfig(c config.SessionConfig) SessionStoreOption {
	return func(sessions *SessionStore) error {
		err := c.Validate()
		if err != nil {
			return err
		}
		sessions.idleSessionTTLSeconds = c.IdleSessionTTLSeconds
		sessions.maxSessionTTLSeconds = c.MaxSessionTTLSeconds
		return nil
	}
}

func WithCookieTemplate(f func() http.Cookie) SessionStoreOption {
	return func(sessions *SessionStore) error {
		sessions.cookieTemplate = f
		return nil
	}
}

func WithIDGenerator(g models.IDGenerator) SessionStoreOption {
	return func(sessions *SessionStore) error {
		sessions.idGenerator = g
		return nil
	}
}

func WithClock(clock clockwork.Clock) SessionStoreOption {
	return func(sessions *SessionStore) error {
		sessions.clock = clock
		return nil
	}
}

func NewSessionStore(options ...SessionStoreOption) (*SessionStore, error) {
	sessions := SessionStore{
		cookieTemplate: func() http.Cookie {
			return http.Cookie{
				Name:     SessionCookieName,
				Path:     "/",
				Secure:   true,
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode}
		},
		idGenerator: models.ULIDGenerator{},
		clock:       clockwork.NewRealClock(),
	}
	for _, opt := range options {
		err := opt(&sessions)
		if err != nil {
			return &SessionStore{}, err
		}
	}
	if sessions.cookieTemplate == nil {
		return &SessionStore{}, fmt.Errorf("cookie template is not initialized")
	}
	if sessions.sessionRepo == nil {
		return &SessionStore{}, fmt.Errorf("session repository is not initialized")
	}
	if sessions.idleSessionTTLSeconds <= 0 || sessions.maxSessionTTLSeconds <= 0 {
		return &SessionStore{}, fmt.Errorf("session lifetimes are not configured")
	}
	return &sessions, nil
}
