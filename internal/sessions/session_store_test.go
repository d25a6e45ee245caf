package sessions

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SwissDataScienceCenter/rentals-gateway/internal/config"
	"github.com/SwissDataScienceCenter/rentals-gateway/internal/gwerrors"
	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSessionStore(t *testing.T, repo SessionRepository, clock clockwork.Clock) *SessionStore {
	sessionStore, err := NewSessionStore(
		WithSessionRepository(repo),
		WithConfig(config.SessionConfig{IdleSessionTTLSeconds: 3600, MaxSessionTTLSeconds: 86400}),
		WithClock(clock),
		WithCookieTemplate(func() http.Cookie {
			return http.Cookie{
				Name:     SessionCookieName,
				Path:     "/",
				Secure:   false,
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode}
		}),
	)
	require.NoError(t, err)
	return sessionStore
}

func setupEchoContext(cookies ...*http.Cookie) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == SessionCookieName {
			return cookie
		}
	}
	require.Fail(t, "the response does not set the session cookie")
	return nil
}

func TestCookie(t *testing.T) {
	sessionStore := setupSessionStore(t, NewInMemorySessionRepository(), clockwork.NewRealClock())
	session := Session{ID: "01HQZX3N8B6Y4W0V2T1S9R7P5M"}

	cookie := sessionStore.Cookie(session)

	assert.Equal(t, SessionCookieName, cookie.Name)
	assert.Equal(t, session.ID, cookie.Value)
	assert.True(t, cookie.HttpOnly)
}

func TestCreateAndGet(t *testing.T) {
	clock := clockwork.NewFakeClock()
	repo := NewInMemorySessionRepository()
	sessionStore := setupSessionStore(t, repo, clock)
	c, rec := setupEchoContext()

	session, err := sessionStore.Create(c)
	require.NoError(t, err)
	assert.Len(t, session.ID, 26)
	assert.Equal(t, clock.Now().UTC().Add(time.Hour), session.ExpiresAt)
	cookie := sessionCookie(t, rec)
	assert.Equal(t, session.ID, cookie.Value)

	clock.Advance(30 * time.Minute)
	next, _ := setupEchoContext(cookie)
	loaded, err := sessionStore.Get(next)
	require.NoError(t, err)
	assert.Equal(t, session.ID, loaded.ID)
	assert.Equal(t, clock.Now().UTC().Add(time.Hour), loaded.ExpiresAt)
}

func TestGetWithoutSession(t *testing.T) {
	sessionStore := setupSessionStore(t, NewInMemorySessionRepository(), clockwork.NewRealClock())
	tests := []struct {
		name    string
		cookies []*http.Cookie
	}{
		{name: "no cookie"},
		{name: "unknown session", cookies: []*http.Cookie{{Name: SessionCookieName, Value: "01HQZX3N8B6Y4W0V2T1S9R7P5M"}}},
		{name: "malformed session ID", cookies: []*http.Cookie{{Name: SessionCookieName, Value: "../../etc"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := setupEchoContext(tt.cookies...)

			_, err := sessionStore.Get(c)

			assert.ErrorIs(t, err, gwerrors.ErrSessionNotFound)
		})
	}
}

func TestExpiredSessionIsRemoved(t *testing.T) {
	clock := clockwork.NewFakeClock()
	repo := NewInMemorySessionRepository()
	sessionStore := setupSessionStore(t, repo, clock)
	c, rec := setupEchoContext()
	session, err := sessionStore.Create(c)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	next, _ := setupEchoContext(sessionCookie(t, rec))
	_, err = sessionStore.Get(next)

	assert.ErrorIs(t, err, gwerrors.ErrSessionNotFound)
	_, err = repo.GetSession(context.Background(), session.ID)
	assert.ErrorIs(t, err, gwerrors.ErrSessionNotFound)
}

func TestDelete(t *testing.T) {
	repo := NewInMemorySessionRepository()
	sessionStore := setupSessionStore(t, repo, clockwork.NewRealClock())
	c, rec := setupEchoContext()
	session, err := sessionStore.Create(c)
	require.NoError(t, err)

	next, nextRec := setupEchoContext(sessionCookie(t, rec))
	err = sessionStore.Delete(next)

	require.NoError(t, err)
	assert.Equal(t, -1, sessionCookie(t, nextRec).MaxAge)
	_, err = repo.GetSession(context.Background(), session.ID)
	assert.ErrorIs(t, err, gwerrors.ErrSessionNotFound)
	_, err = sessionStore.Get(next)
	assert.ErrorIs(t, err, gwerrors.ErrSessionNotFound)
}

func TestMiddlewareTouchesSession(t *testing.T) {
	clock := clockwork.NewFakeClock()
	repo := NewInMemorySessionRepository()
	sessionStore := setupSessionStore(t, repo, clock)
	c, rec := setupEchoContext()
	session, err := sessionStore.Create(c)
	require.NoError(t, err)
	clock.Advance(10 * time.Minute)

	next, _ := setupEchoContext(sessionCookie(t, rec))
	var seen *Session
	handler := sessionStore.Middleware()(func(c echo.Context) error {
		seen, _ = c.Get(SessionCtxKey).(*Session)
		return nil
	})
	require.NoError(t, handler(next))

	require.NotNil(t, seen)
	assert.Equal(t, session.ID, seen.ID)
	stored, err := repo.GetSession(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().UTC().Add(time.Hour), stored.ExpiresAt)
}

func TestMiddlewareWithoutSession(t *testing.T) {
	sessionStore := setupSessionStore(t, NewInMemorySessionRepository(), clockwork.NewRealClock())
	c, _ := setupEchoContext()
	called := false
	handler := sessionStore.Middleware()(func(c echo.Context) error {
		called = true
		_, err := sessionStore.Get(c)
		assert.ErrorIs(t, err, gwerrors.ErrSessionNotFound)
		return nil
	})

	require.NoError(t, handler(c))
	assert.True(t, called)
}

func TestRedisSessionRepository(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	repo := NewSessionRepository(config.CredentialsConfig{
		Type:  config.CredentialsTypeRedis,
		Redis: config.RedisConfig{KeyPrefix: "test"},
	}, rdb)
	require.IsType(t, &RedisSessionRepository{}, repo)
	session := Session{
		ID:             "01HQZX3N8B6Y4W0V2T1S9R7P5M",
		CreatedAt:      time.Now().UTC().Truncate(time.Second),
		ExpiresAt:      time.Now().UTC().Truncate(time.Second).Add(time.Hour),
		IdleTTLSeconds: 3600,
		MaxTTLSeconds:  86400,
	}

	require.NoError(t, repo.SetSession(ctx, session))
	assert.InDelta(t, time.Hour.Seconds(), mr.TTL("test:sessions:"+session.ID).Seconds(), 5)
	stored, err := repo.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, session.ExpiresAt.Equal(stored.ExpiresAt))
	assert.Equal(t, session.ID, stored.ID)

	require.NoError(t, repo.RemoveSession(ctx, session.ID))
	_, err = repo.GetSession(ctx, session.ID)
	assert.ErrorIs(t, err, gwerrors.ErrSessionNotFound)
}

func TestNewSessionStore(t *testing.T) {
	_, err := NewSessionStore(WithConfig(config.SessionConfig{IdleSessionTTLSeconds: 60, MaxSessionTTLSeconds: 120}))
	assert.Error(t, err)
	_, err = NewSessionStore(WithSessionRepository(NewInMemorySessionRepository()))
	assert.Error(t, err)
	_, err = NewSessionStore(
		WithSessionRepository(NewInMemorySessionRepository()),
		WithConfig(config.SessionConfig{IdleSessionTTLSeconds: 120, MaxSessionTTLSeconds: 60}),
	)
	assert.Error(t, err)
	assert.IsType(t, &InMemorySessionRepository{}, NewSessionRepository(config.CredentialsConfig{Type: config.CredentialsTypeDisk}, nil))
}
