// Package metrics holds the prometheus collectors of the gateway. They are registered on the
// default registry which the gateway exposes through echoprometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace string = "rentals_gateway"

const (
	RefreshSucceeded string = "success"
	RefreshFailed    string = "failure"
	// RefreshSkipped counts 401s that could not be refreshed because no refresh token was stored
	RefreshSkipped string = "skipped"
)

var TokenRefreshes = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_refresh_total",
		Help:      "Number of access token refresh attempts by outcome.",
	},
	[]string{"outcome"},
)

var RefreshWaiters = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "token_refresh_waiters",
		Help:      "Number of requests currently queued behind an in-flight token refresh.",
	},
)

var SessionsExpired = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_expired_total",
		Help:      "Number of sessions ended because the access token could not be refreshed.",
	},
)
