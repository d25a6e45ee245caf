package config

import (
	"fmt"
	"strings"

	"github.com/labstack/gommon/bytes"
)

type RateLimits struct {
	Enabled bool
	Rate    float64
	Burst   int
}

type ServerConfig struct {
	Host              string
	Port              int
	RateLimits        RateLimits
	AllowOrigin       []string
	LoginRedirectPath string
	// BodyLimit caps the size of bodies forwarded to the rental API, e.g. "10M"
	BodyLimit string
}

func (c *ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Port)
	}
	if !strings.HasPrefix(c.LoginRedirectPath, "/") {
		return fmt.Errorf("the login redirect path must be absolute, got %q", c.LoginRedirectPath)
	}
	limit, err := bytes.Parse(c.BodyLimit)
	if err != nil || limit <= 0 {
		return fmt.Errorf("invalid request body limit %q", c.BodyLimit)
	}
	if c.RateLimits.Enabled && (c.RateLimits.Rate <= 0 || c.RateLimits.Burst <= 0) {
		return fmt.Errorf("rate limits need a positive rate and burst when enabled")
	}
	return nil
}

type RefresherConfig struct {
	Enabled             bool
	IntervalSeconds     int
	ExpiryMarginSeconds int
}

func (c *RefresherConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.IntervalSeconds <= 0 {
		return fmt.Errorf("invalid value for the refresher interval (%d)", c.IntervalSeconds)
	}
	if c.ExpiryMarginSeconds < c.IntervalSeconds {
		return fmt.Errorf(
			"the refresher expiry margin (%ds) cannot be shorter than its interval (%ds)",
			c.ExpiryMarginSeconds,
			c.IntervalSeconds,
		)
	}
	return nil
}

type SentryConfig struct {
	Enabled     bool
	Dsn         RedactedString
	Environment string
	SampleRate  float64
}

type PrometheusConfig struct {
	Enabled bool
	Port    int
}

type MonitoringConfig struct {
	Sentry     SentryConfig
	Prometheus PrometheusConfig
}
