// Package tokenrefresher renews the stored access token shortly before it expires so that
// requests rarely hit the refresh-on-401 path.
package tokenrefresher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SwissDataScienceCenter/rentals-gateway/internal/config"
	"github.com/SwissDataScienceCenter/rentals-gateway/internal/gwerrors"
	"github.com/SwissDataScienceCenter/rentals-gateway/internal/models"
	"github.com/go-co-op/gocron"
	"github.com/golang-jwt/jwt/v4"
	"github.com/jonboulle/clockwork"
)

// AccessTokenGetter reads the stored access token.
type AccessTokenGetter interface {
	Get(ctx context.Context, key models.CredentialKey) (string, error)
}

// Refresher renews the access token, the authenticated client implements it.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

// Target is one set of credentials to keep fresh, the gateway has one per browser session.
type Target struct {
	Name      string
	Tokens    AccessTokenGetter
	Refresher Refresher
}

// TargetLister is asked for the current targets on every run.
type TargetLister interface {
	Targets() []Target
}

// StaticTargets is a fixed list of targets.
type StaticTargets []Target

func (s StaticTargets) Targets() []Target {
	return s
}

type TokenRefresher struct {
	interval     time.Duration
	expiryMargin time.Duration
	targets      TargetLister
	clock        clockwork.Clock
}

func (tr *TokenRefresher) GetScheduler() (*gocron.Scheduler, error) {
	s := gocron.NewScheduler(time.UTC)

	refreshTask := func(job gocron.Job) {
		tr.refreshAll(job.Context())
	}

	_, err := s.Every(tr.interval).
		SingletonMode().
		DoWithJobDetails(refreshTask)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (tr *TokenRefresher) refreshAll(ctx context.Context) {
	for _, target := range tr.targets.Targets() {
		err := tr.refreshExpiringToken(ctx, target)
		if err != nil {
			slog.Error("TOKEN REFRESHER", "message", "refreshExpiringToken failed", "target", target.Name, "error", err)
		}
	}
}

func (tr *TokenRefresher) refreshExpiringToken(ctx context.Context, target Target) error {
	token, err := target.Tokens.Get(ctx, models.AccessTokenKey)
	if err != nil {
		if errors.Is(err, gwerrors.ErrCredentialNotFound) {
			return nil
		}
		return err
	}
	expiresAt, ok := expiry(token)
	if !ok {
		slog.Debug("TOKEN REFRESHER", "message", "the access token has no expiry claim, skipping")
		return nil
	}
	remaining := expiresAt.Sub(tr.clock.Now())
	if remaining > tr.expiryMargin {
		return nil
	}
	slog.Info(
		"TOKEN REFRESHER",
		"message",
		"access token expires soon, refreshing",
		"target",
		target.Name,
		"remaining",
		remaining.String(),
	)
	_, err = target.Refresher.Refresh(ctx)
	if errors.Is(err, gwerrors.ErrMissingCredentials) {
		return nil
	}
	return err
}

// expiry reads the exp claim without verifying the signature, the rental API does the verification.
func expiry(token string) (time.Time, bool) {
	claims := jwt.RegisteredClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(token, &claims)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

type TokenRefresherOption func(*TokenRefresher) error

func WithConfig(refresherConfig config.RefresherConfig) TokenRefresherOption {
	return func(tr *TokenRefresher) error {
		if refresherConfig.IntervalSeconds <= 0 {
			return fmt.Errorf("invalid value for the refresher interval (%d)", refresherConfig.IntervalSeconds)
		}
		tr.interval = time.Duration(refresherConfig.IntervalSeconds) * time.Second
		tr.expiryMargin = time.Duration(refresherConfig.ExpiryMarginSeconds) * time.Second
		return nil
	}
}

func WithInterval(interval time.Duration) TokenRefresherOption {
	return func(tr *TokenRefresher) error {
		if interval <= 0 {
			return fmt.Errorf("invalid value for the refresher interval (%s)", interval)
		}
		tr.interval = interval
		return nil
	}
}

func WithTargets(targets TargetLister) TokenRefresherOption {
	return func(tr *TokenRefresher) error {
		tr.targets = targets
		return nil
	}
}

func WithClock(clock clockwork.Clock) TokenRefresherOption {
	return func(tr *TokenRefresher) error {
		tr.clock = clock
		return nil
	}
}

func NewTokenRefresher(options ...TokenRefresherOption) (*TokenRefresher, error) {
	tr := TokenRefresher{
		interval:     time.Minute,
		expiryMargin: 5 * time.Minute,
		clock:        clockwork.NewRealClock(),
	}
	for _, opt := range options {
		err := opt(&tr)
		if err != nil {
			return &TokenRefresher{}, err
		}
	}
	if tr.targets == nil {
		return &TokenRefresher{}, fmt.Errorf("refresh targets not initialized")
	}
	return &tr, nil
}
