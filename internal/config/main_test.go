package config

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getValidConfig(t *testing.T) Config {
	baseURL, err := url.Parse("https://api.rentals.example.com/api")
	require.NoError(t, err)
	return Config{
		RunningEnvironment: Production,
		Backend: BackendConfig{
			BaseURL:               baseURL,
			RequestTimeoutSeconds: 30,
			RefreshTimeoutSeconds: 30,
			AccessTokenTTLHours:   168,
		},
		Credentials: CredentialsConfig{
			Type:  CredentialsTypeRedis,
			Redis: RedisConfig{Addresses: []string{"localhost:6379"}},
		},
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8080,
			LoginRedirectPath: "/login",
			BodyLimit:         "10M",
		},
		Sessions: SessionConfig{
			IdleSessionTTLSeconds: 604800,
			MaxSessionTTLSeconds:  2592000,
		},
		Refresher: RefresherConfig{
			Enabled:             true,
			IntervalSeconds:     60,
			ExpiryMarginSeconds: 300,
		},
	}
}

func TestValidConfig(t *testing.T) {
	config := getValidConfig(t)

	err := config.Validate()

	assert.NoError(t, err)
}

func TestInvalidRunningEnvironment(t *testing.T) {
	config := getValidConfig(t)
	config.RunningEnvironment = "staging"

	err := config.Validate()

	assert.Error(t, err)
}

func TestMissingBackendURL(t *testing.T) {
	config := getValidConfig(t)
	config.Backend.BaseURL = nil

	err := config.Validate()

	assert.Error(t, err)
}

func TestInvalidBackendScheme(t *testing.T) {
	config := getValidConfig(t)
	config.Backend.BaseURL = &url.URL{Scheme: "ftp", Host: "example.com"}

	err := config.Validate()

	assert.Error(t, err)
}

func TestInvalidAccessTokenTTL(t *testing.T) {
	config := getValidConfig(t)
	config.Backend.AccessTokenTTLHours = 0

	err := config.Validate()

	assert.Error(t, err)
}

func TestMemoryCredentialsInProduction(t *testing.T) {
	config := getValidConfig(t)
	config.Credentials.Type = CredentialsTypeMemory

	err := config.Validate()
	assert.Error(t, err)

	config.RunningEnvironment = Development
	err = config.Validate()
	assert.NoError(t, err)
}

func TestInvalidCredentialsConfig(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(*CredentialsConfig)
	}{
		{"unknown type", func(c *CredentialsConfig) { c.Type = "cookies" }},
		{"redis without addresses", func(c *CredentialsConfig) { c.Redis.Addresses = nil }},
		{"sentinel without master", func(c *CredentialsConfig) { c.Redis.IsSentinel = true }},
		{"disk without path", func(c *CredentialsConfig) { c.Type = CredentialsTypeDisk }},
		{"short encryption key", func(c *CredentialsConfig) {
			c.Encryption = TokenEncryptionConfig{Enabled: true, SecretKey: "too-short"}
		}},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			config := getValidConfig(t)
			testCase.modify(&config.Credentials)

			err := config.Validate()

			assert.Error(t, err)
		})
	}
}

func TestInvalidServerConfig(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(*ServerConfig)
	}{
		{"relative login redirect", func(c *ServerConfig) { c.LoginRedirectPath = "login" }},
		{"missing body limit", func(c *ServerConfig) { c.BodyLimit = "" }},
		{"garbage body limit", func(c *ServerConfig) { c.BodyLimit = "ten megabytes" }},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			config := getValidConfig(t)
			testCase.modify(&config.Server)

			err := config.Validate()

			assert.Error(t, err)
		})
	}
}

func TestInvalidSessionsConfig(t *testing.T) {
	config := getValidConfig(t)
	config.Sessions.MaxSessionTTLSeconds = 60

	err := config.Validate()

	assert.Error(t, err)
}

func TestInvalidRefresherConfig(t *testing.T) {
	config := getValidConfig(t)
	config.Refresher.ExpiryMarginSeconds = 10

	err := config.Validate()
	assert.Error(t, err)

	config.Refresher.Enabled = false
	err = config.Validate()
	assert.NoError(t, err)
}

func TestBackendDurations(t *testing.T) {
	config := getValidConfig(t)

	assert.Equal(t, "30s", config.Backend.RequestTimeout().String())
	assert.Equal(t, "30s", config.Backend.RefreshTimeout().String())
	assert.Equal(t, "168h0m0s", config.Backend.AccessTokenTTL().String())
}
