// Package credentials persists the access token, refresh token and role marker used by the
// authenticated client. Every backend is safe for concurrent use.
package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/SwissDataScienceCenter/rentals-gateway/internal/models"
)

// Store is the key-value accessor the authenticated client reads and writes credentials through.
// Get returns gwerrors.ErrCredentialNotFound when the key is absent or expired.
// Removing an absent key is not an error.
type Store interface {
	Get(ctx context.Context, key models.CredentialKey) (string, error)
	Set(ctx context.Context, key models.CredentialKey, value string, opts models.SetOptions) error
	Remove(ctx context.Context, key models.CredentialKey) error
}

// Clear removes every credential key, it keeps going when a removal fails.
func Clear(ctx context.Context, store Store) error {
	var errs []error
	for _, key := range models.AllCredentialKeys {
		err := store.Remove(ctx, key)
		if err != nil {
			errs = append(errs, fmt.Errorf("removing %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}
