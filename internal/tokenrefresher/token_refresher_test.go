package tokenrefresher

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/SwissDataScienceCenter/rentals-gateway/internal/config"
	"github.com/SwissDataScienceCenter/rentals-gateway/internal/credentials"
	"github.com/SwissDataScienceCenter/rentals-gateway/internal/gwerrors"
	"github.com/SwissDataScienceCenter/rentals-gateway/internal/models"
	"github.com/golang-jwt/jwt/v4"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

type dummyRefresher struct {
	lock  sync.Mutex
	calls int
	err   error
}

func (d *dummyRefresher) Refresh(context.Context) (string, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.calls++
	return "refreshed", d.err
}

func (d *dummyRefresher) callCount() int {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.calls
}

func signedToken(t *testing.T, expiresAt *jwt.NumericDate) string {
	claims := jwt.RegisteredClaims{Subject: "jane", ExpiresAt: expiresAt}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("not-known-to-the-gateway"))
	require.NoError(t, err)
	return token
}

func newTestRefresher(t *testing.T, store credentials.Store, refresher Refresher, clock clockwork.Clock) *TokenRefresher {
	tr, err := NewTokenRefresher(
		WithConfig(config.RefresherConfig{Enabled: true, IntervalSeconds: 60, ExpiryMarginSeconds: 300}),
		WithTargets(StaticTargets{{Name: "test", Tokens: store, Refresher: refresher}}),
		WithClock(clock),
	)
	require.NoError(t, err)
	return tr
}

func TestRefreshExpiringToken(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	tests := []struct {
		name          string
		token         string
		refresherErr  error
		expectedCalls int
		expectErr     bool
	}{
		{name: "no token"},
		{name: "not a jwt", token: "opaque-token"},
		{name: "no expiry claim", token: signedToken(t, nil)},
		{name: "expires later", token: signedToken(t, jwt.NewNumericDate(clock.Now().Add(time.Hour)))},
		{name: "expires soon", token: signedToken(t, jwt.NewNumericDate(clock.Now().Add(2*time.Minute))), expectedCalls: 1},
		{name: "already expired", token: signedToken(t, jwt.NewNumericDate(clock.Now().Add(-time.Minute))), expectedCalls: 1},
		{
			name:          "refresh fails",
			token:         signedToken(t, jwt.NewNumericDate(clock.Now().Add(time.Minute))),
			refresherErr:  fmt.Errorf("%w: refresh rejected", gwerrors.ErrSessionExpired),
			expectedCalls: 1,
			expectErr:     true,
		},
		{
			name:          "refresh token gone",
			token:         signedToken(t, jwt.NewNumericDate(clock.Now().Add(time.Minute))),
			refresherErr:  gwerrors.ErrMissingCredentials,
			expectedCalls: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := credentials.NewMemoryStore(credentials.WithClock(clock))
			if tt.token != "" {
				require.NoError(t, store.Set(ctx, models.AccessTokenKey, tt.token, models.SetOptions{}))
			}
			refresher := &dummyRefresher{err: tt.refresherErr}
			tr := newTestRefresher(t, store, refresher, clock)

			err := tr.refreshExpiringToken(ctx, tr.targets.Targets()[0])
			if tt.expectErr {
				assert.ErrorIs(t, err, gwerrors.ErrSessionExpired)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.expectedCalls, refresher.callCount())
		})
	}
}

func TestRefreshAllKeepsGoingAfterFailure(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	expiring := signedToken(t, jwt.NewNumericDate(clock.Now().Add(time.Minute)))
	failingStore := credentials.NewMemoryStore(credentials.WithClock(clock))
	require.NoError(t, failingStore.Set(ctx, models.AccessTokenKey, expiring, models.SetOptions{}))
	healthyStore := credentials.NewMemoryStore(credentials.WithClock(clock))
	require.NoError(t, healthyStore.Set(ctx, models.AccessTokenKey, expiring, models.SetOptions{}))
	failing := &dummyRefresher{err: gwerrors.ErrSessionExpired}
	healthy := &dummyRefresher{}
	tr, err := NewTokenRefresher(
		WithTargets(StaticTargets{
			{Name: "failing", Tokens: failingStore, Refresher: failing},
			{Name: "healthy", Tokens: healthyStore, Refresher: healthy},
		}),
		WithClock(clock),
	)
	require.NoError(t, err)

	tr.refreshAll(ctx)

	assert.Equal(t, 1, failing.callCount())
	assert.Equal(t, 1, healthy.callCount())
}

func TestSchedulerRefreshesExpiringTokens(t *testing.T) {
	store := credentials.NewMemoryStore()
	expiring := signedToken(t, jwt.NewNumericDate(time.Now().Add(time.Minute)))
	require.NoError(t, store.Set(ctx, models.AccessTokenKey, expiring, models.SetOptions{}))
	refresher := &dummyRefresher{}
	tr, err := NewTokenRefresher(
		WithTargets(StaticTargets{{Name: "test", Tokens: store, Refresher: refresher}}),
		WithInterval(20*time.Millisecond),
	)
	require.NoError(t, err)
	s, err := tr.GetScheduler()
	require.NoError(t, err)

	s.StartAsync()
	t.Cleanup(s.Stop)

	assert.Eventually(t, func() bool { return refresher.callCount() >= 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestNewTokenRefresher(t *testing.T) {
	store := credentials.NewMemoryStore()
	targets := StaticTargets{{Name: "test", Tokens: store, Refresher: &dummyRefresher{}}}
	_, err := NewTokenRefresher()
	assert.Error(t, err)
	_, err = NewTokenRefresher(WithTargets(targets), WithConfig(config.RefresherConfig{}))
	assert.Error(t, err)
	_, err = NewTokenRefresher(WithTargets(targets), WithInterval(0))
	assert.Error(t, err)

	tr := newTestRefresher(t, store, &dummyRefresher{}, clockwork.NewRealClock())
	s, err := tr.GetScheduler()
	require.NoError(t, err)
	assert.Len(t, s.Jobs(), 1)
}
