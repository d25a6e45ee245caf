package models

import (
	"testing"
	"time"

	"github.com/SwissDataScienceCenter/rentals-gateway/internal/gwerrors"
	"github.com/stretchr/testify/assert"
)

func TestCredentialKeyValidate(t *testing.T) {
	for _, key := range AllCredentialKeys {
		assert.NoError(t, key.Validate())
	}
	assert.ErrorIs(t, CredentialKey("session_id").Validate(), gwerrors.ErrInvalidCredentialKey)
}

func TestSetOptionsExpired(t *testing.T) {
	now := time.Now()

	assert.False(t, SetOptions{}.Expired(now))
	assert.False(t, SetOptions{ExpiresAt: now.Add(time.Minute)}.Expired(now))
	assert.True(t, SetOptions{ExpiresAt: now}.Expired(now))
	assert.True(t, SetOptions{ExpiresAt: now.Add(-time.Minute)}.Expired(now))
}
