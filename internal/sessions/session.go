// Package sessions ties a browser to the credentials the gateway keeps on its behalf through an
// opaque session cookie.
package sessions

import (
	"time"
)

// Session represents a persistent session between a browser and the gateway
type Session struct {
	ID string `json:"id"`
	// UTC timestamp for when the session was created
	CreatedAt time.Time `json:"createdAt"`
	// UTC timestamp for when the session will expire
	ExpiresAt      time.Time `json:"expiresAt"`
	IdleTTLSeconds int       `json:"idleTTLSeconds"`
	MaxTTLSeconds  int       `json:"maxTTLSeconds"`
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Touch updates a session's ExpiresAt field according to IdleTTLSeconds and MaxTTLSeconds
func (s *Session) Touch(now time.Time) {
	maxExpiresAt := s.CreatedAt.Add(s.MaxTTL())
	expiresAt := now.UTC().Add(s.IdleTTL())
	if expiresAt.After(maxExpiresAt) {
		expiresAt = maxExpiresAt
	}
	s.ExpiresAt = expiresAt
}

func (s *Session) IdleTTL() time.Duration {
	return time.Duration(s.IdleTTLSeconds) * time.Second
}

func (s *Session) MaxTTL() time.Duration {
	return time.Duration(s.MaxTTLSeconds) * time.Second
}
