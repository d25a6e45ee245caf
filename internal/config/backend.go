package config

import (
	"fmt"
	"net/url"
	"time"
)

type BackendConfig struct {
	BaseURL               *url.URL
	RequestTimeoutSeconds int
	RefreshTimeoutSeconds int
	AccessTokenTTLHours   int
}

func (c BackendConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c BackendConfig) RefreshTimeout() time.Duration {
	return time.Duration(c.RefreshTimeoutSeconds) * time.Second
}

func (c BackendConfig) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLHours) * time.Hour
}

func (c *BackendConfig) Validate() error {
	if c.BaseURL == nil {
		return fmt.Errorf("the backend config is missing the base url of the rental API")
	}
	if c.BaseURL.Scheme != "http" && c.BaseURL.Scheme != "https" {
		return fmt.Errorf("the backend base url must use http or https, got %q", c.BaseURL.Scheme)
	}
	if c.RequestTimeoutSeconds < 0 {
		return fmt.Errorf("the backend request timeout cannot be negative (%d)", c.RequestTimeoutSeconds)
	}
	if c.RefreshTimeoutSeconds <= 0 {
		return fmt.Errorf("invalid value for the refresh timeout (%d)", c.RefreshTimeoutSeconds)
	}
	if c.AccessTokenTTLHours <= 0 {
		return fmt.Errorf("invalid value for the access token TTL (%d)", c.AccessTokenTTLHours)
	}
	return nil
}
