// Package gateway serves the browser-facing side of the rental dashboard. It keeps the
// credentials of every browser session server side and forwards API calls through the
// authenticated client of that session.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"runtime/debug"

	"github.com/SwissDataScienceCenter/rentals-gateway/internal/authclient"
	"github.com/SwissDataScienceCenter/rentals-gateway/internal/config"
	"github.com/SwissDataScienceCenter/rentals-gateway/internal/credentials"
	"github.com/SwissDataScienceCenter/rentals-gateway/internal/sessions"
	"github.com/SwissDataScienceCenter/rentals-gateway/internal/tokenrefresher"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// AuthenticatedClient is the part of authclient.Client used by the gateway.
type AuthenticatedClient interface {
	Do(req *http.Request) (*http.Response, error)
	Login(ctx context.Context, login authclient.LoginRequest) (authclient.Session, error)
	Logout(ctx context.Context) error
	Session(ctx context.Context) (authclient.Session, error)
	Refresh(ctx context.Context) (string, error)
	BaseURL() *url.URL
}

type Gateway struct {
	config        *config.ServerConfig
	sessionConfig *config.SessionConfig
	sessions      *sessions.SessionStore
	provider      credentials.Provider
	newClient     ClientFactory
	clients       *clientPool
	// anonymous serves requests without a session, its store is never written
	anonymous AuthenticatedClient
}

func (g *Gateway) RegisterHandlers(e *echo.Echo, commonMiddlewares ...echo.MiddlewareFunc) {
	e.GET("/health", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	version := buildVersion()
	e.GET("/version", func(c echo.Context) error {
		return c.String(http.StatusOK, version)
	})

	sessionMiddlewares := append(append([]echo.MiddlewareFunc{}, commonMiddlewares...), g.sessions.Middleware())
	auth := e.Group("/auth", sessionMiddlewares...)
	auth.POST("/login", g.login)
	auth.POST("/logout", g.logout)
	auth.GET("/session", g.session)

	api := e.Group("/api", append(sessionMiddlewares, middleware.BodyLimit(g.config.BodyLimit), noCredentials)...)
	api.Any("/*", g.forward)
}

// RefreshTargets exposes the credentials of the active sessions to the token refresher.
func (g *Gateway) RefreshTargets() tokenrefresher.TargetLister {
	return g.clients
}

func buildVersion() string {
	buildInfo, ok := debug.ReadBuildInfo()
	if ok && buildInfo != nil {
		return buildInfo.Main.Version
	}
	return ""
}

type GatewayOption func(*Gateway)

func WithConfig(serverConfig config.ServerConfig) GatewayOption {
	return func(g *Gateway) {
		g.config = &serverConfig
	}
}

func WithSessionConfig(sessionConfig config.SessionConfig) GatewayOption {
	return func(g *Gateway) {
		g.sessionConfig = &sessionConfig
	}
}

func WithSessionStore(store *sessions.SessionStore) GatewayOption {
	return func(g *Gateway) {
		g.sessions = store
	}
}

func WithCredentialProvider(provider credentials.Provider) GatewayOption {
	return func(g *Gateway) {
		g.provider = provider
	}
}

// WithClientFactory sets how the authenticated client of a session is built.
func WithClientFactory(newClient ClientFactory) GatewayOption {
	return func(g *Gateway) {
		g.newClient = newClient
	}
}

func NewServer(options ...GatewayOption) (*Gateway, error) {
	server := Gateway{}
	for _, opt := range options {
		opt(&server)
	}
	if server.config == nil {
		return &Gateway{}, fmt.Errorf("gateway config not provided")
	}
	if server.sessionConfig == nil {
		return &Gateway{}, fmt.Errorf("session config not provided")
	}
	if server.sessions == nil {
		return &Gateway{}, fmt.Errorf("session store not initialized")
	}
	if server.provider == nil {
		return &Gateway{}, fmt.Errorf("credential provider not initialized")
	}
	if server.newClient == nil {
		return &Gateway{}, fmt.Errorf("client factory not initialized")
	}
	if server.config.LoginRedirectPath == "" {
		server.config.LoginRedirectPath = "/login"
	}
	if server.config.BodyLimit == "" {
		server.config.BodyLimit = "10M"
	}
	anonymous, err := server.newClient(credentials.NewMemoryStore())
	if err != nil {
		return &Gateway{}, err
	}
	server.anonymous = anonymous
	server.clients = newClientPool(server.provider, server.newClient, server.sessionConfig.IdleTTL(), clockwork.NewRealClock())
	return &server, nil
}
