package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SwissDataScienceCenter/rentals-gateway/internal/authclient"
	"github.com/SwissDataScienceCenter/rentals-gateway/internal/config"
	"github.com/SwissDataScienceCenter/rentals-gateway/internal/credentials"
	"github.com/SwissDataScienceCenter/rentals-gateway/internal/gateway"
	"github.com/SwissDataScienceCenter/rentals-gateway/internal/sessions"
	"github.com/SwissDataScienceCenter/rentals-gateway/internal/tokenrefresher"
	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/bytes"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

func main() {
	// Logging setup
	slog.SetDefault(jsonLogger)
	// Load configuration
	ch := config.NewConfigHandler()
	gwConfig, err := ch.Config()
	if err != nil {
		slog.Error("loading the configuration failed", "error", err)
		os.Exit(1)
	}
	slog.Info("loaded config", "config", gwConfig)
	err = gwConfig.Validate()
	if err != nil {
		slog.Error("the config validation failed", "error", err)
		os.Exit(1)
	}
	setLogLevel(gwConfig.DebugMode)
	// Only the log level can be changed without a restart
	ch.HandleChanges(func(newConfig config.Config, err error) {
		if err != nil {
			slog.Error("reloading the configuration failed", "error", err)
			return
		}
		setLogLevel(newConfig.DebugMode)
	})
	ch.Watch()
	// Sentry
	if gwConfig.Monitoring.Sentry.Enabled {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              string(gwConfig.Monitoring.Sentry.Dsn),
			TracesSampleRate: gwConfig.Monitoring.Sentry.SampleRate,
			Environment:      gwConfig.Monitoring.Sentry.Environment,
		})
		if err != nil {
			slog.Error("sentry initialization failed", "error", err)
		}
		defer sentry.Flush(2 * time.Second)
	}
	// Credentials and sessions, kept next to each other
	var rdb credentials.LimitedRedisClient
	if gwConfig.Credentials.Type == config.CredentialsTypeRedis {
		redisClient, err := credentials.NewRedisClient(gwConfig.Credentials.Redis)
		if err != nil {
			slog.Error("redis client initialization failed", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		rdb = redisClient
	}
	provider, err := credentials.NewProvider(gwConfig.Credentials, gwConfig.Sessions, rdb)
	if err != nil {
		slog.Error("credential provider initialization failed", "error", err)
		os.Exit(1)
	}
	sessionStoreOptions := []sessions.SessionStoreOption{
		sessions.WithSessionRepository(sessions.NewSessionRepository(gwConfig.Credentials, rdb)),
		sessions.WithConfig(gwConfig.Sessions),
	}
	if gwConfig.RunningEnvironment == config.Development {
		// local development runs over plain http
		sessionStoreOptions = append(sessionStoreOptions, sessions.WithCookieTemplate(insecureCookie))
	}
	sessionStore, err := sessions.NewSessionStore(sessionStoreOptions...)
	if err != nil {
		slog.Error("session store initialization failed", "error", err)
		os.Exit(1)
	}
	// Authenticated clients, one per session
	maxBodyBytes, err := bytes.Parse(gwConfig.Server.BodyLimit)
	if err != nil {
		slog.Error("parsing the request body limit failed", "error", err)
		os.Exit(1)
	}
	newClient := func(store credentials.Store) (gateway.AuthenticatedClient, error) {
		client, err := authclient.NewClient(
			authclient.WithConfig(gwConfig.Backend),
			authclient.WithCredentialStore(store),
			authclient.WithSessionExpiredHandler(onSessionExpired),
			authclient.WithMaxBodyBytes(maxBodyBytes),
		)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	// Setup
	e := echo.New()
	e.Pre(middleware.RequestID())
	e.Use(middleware.Recover())
	// The banner and the port do not respect the logger formatting we set below so we remove them
	// the port will be logged further down when the server starts.
	e.HideBanner = true
	e.HidePort = true
	// Rate limiting
	if gwConfig.Server.RateLimits.Enabled {
		e.Use(middleware.RateLimiter(
			middleware.NewRateLimiterMemoryStoreWithConfig(
				middleware.RateLimiterMemoryStoreConfig{
					Rate:      rate.Limit(gwConfig.Server.RateLimits.Rate),
					Burst:     gwConfig.Server.RateLimits.Burst,
					ExpiresIn: 3 * time.Minute,
				}),
		),
		)
	}
	// CORS
	if len(gwConfig.Server.AllowOrigin) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     gwConfig.Server.AllowOrigin,
			AllowCredentials: true,
		}))
	}
	if gwConfig.Monitoring.Sentry.Enabled {
		e.Use(sentryecho.New(sentryecho.Options{Repanic: true}))
	}
	if gwConfig.Monitoring.Prometheus.Enabled {
		e.Use(echoprometheus.NewMiddleware("rentals_gateway"))
	}
	// Gateway routes
	gw, err := gateway.NewServer(
		gateway.WithConfig(gwConfig.Server),
		gateway.WithSessionConfig(gwConfig.Sessions),
		gateway.WithSessionStore(sessionStore),
		gateway.WithCredentialProvider(provider),
		gateway.WithClientFactory(newClient),
	)
	if err != nil {
		slog.Error("gateway handlers initialization failed", "error", err)
		os.Exit(1)
	}
	gw.RegisterHandlers(e, commonMiddlewares...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)
	// Start server
	address := fmt.Sprintf("%s:%d", gwConfig.Server.Host, gwConfig.Server.Port)
	slog.Info("starting the server on address " + address)
	g.Go(func() error {
		err := e.Start(address)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	// Prometheus
	var metrics *echo.Echo
	if gwConfig.Monitoring.Prometheus.Enabled {
		metrics = echo.New()
		metrics.HideBanner = true
		metrics.HidePort = true
		metrics.GET("/metrics", echoprometheus.NewHandler())
		g.Go(func() error {
			err := metrics.Start(fmt.Sprintf(":%d", gwConfig.Monitoring.Prometheus.Port))
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("prometheus server failed: %w", err)
			}
			return nil
		})
	}
	// Token refresher
	if gwConfig.Refresher.Enabled {
		refresher, err := tokenrefresher.NewTokenRefresher(
			tokenrefresher.WithConfig(gwConfig.Refresher),
			tokenrefresher.WithTargets(gw.RefreshTargets()),
		)
		if err != nil {
			slog.Error("token refresher initialization failed", "error", err)
			os.Exit(1)
		}
		scheduler, err := refresher.GetScheduler()
		if err != nil {
			slog.Error("token refresher scheduling failed", "error", err)
			os.Exit(1)
		}
		scheduler.StartAsync()
		defer scheduler.Stop()
	}
	// Wait for a signal or a failing server, then shut down with a timeout of 10 seconds.
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("received signal to shut down the server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		errs := []error{e.Shutdown(shutdownCtx)}
		if metrics != nil {
			errs = append(errs, metrics.Shutdown(shutdownCtx))
		}
		return errors.Join(errs...)
	})
	if err := g.Wait(); err != nil {
		slog.Error("shutting down the server gracefully failed", "error", err)
		os.Exit(1)
	}
}

// onSessionExpired reports a session that could not be renewed. The browser is sent to the login
// page by the gateway itself.
func onSessionExpired(ctx context.Context, err error) {
	slog.Warn("SESSION", "message", "the session expired and the credentials were cleared", "error", err)
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.CaptureException(err)
		return
	}
	sentry.CaptureException(err)
}

func insecureCookie() http.Cookie {
	return http.Cookie{
		Name:     sessions.SessionCookieName,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}
