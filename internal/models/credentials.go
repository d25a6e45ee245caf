package models

import (
	"fmt"
	"time"

	"github.com/SwissDataScienceCenter/rentals-gateway/internal/gwerrors"
)

// CredentialKey names one entry of the persisted credential set.
type CredentialKey string

const (
	AccessTokenKey  CredentialKey = "access_token"
	RefreshTokenKey CredentialKey = "refresh_token"
	// RoleKey is the session role marker written at login. The auth client only ever removes it.
	RoleKey CredentialKey = "role"
)

// AllCredentialKeys lists every key that is wiped when a session ends.
var AllCredentialKeys = []CredentialKey{AccessTokenKey, RefreshTokenKey, RoleKey}

func (k CredentialKey) Validate() error {
	switch k {
	case AccessTokenKey, RefreshTokenKey, RoleKey:
		return nil
	default:
		return fmt.Errorf("%w: %s", gwerrors.ErrInvalidCredentialKey, string(k))
	}
}

func (k CredentialKey) String() string {
	return string(k)
}

// SetOptions controls how a credential is persisted. A zero ExpiresAt means the value does not expire.
type SetOptions struct {
	ExpiresAt time.Time
}

func (o SetOptions) Expired(now time.Time) bool {
	return !o.ExpiresAt.IsZero() && !now.Before(o.ExpiresAt)
}
