package credentials

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/SwissDataScienceCenter/rentals-gateway/internal/gwerrors"
	"github.com/SwissDataScienceCenter/rentals-gateway/internal/models"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEncryptionKey string = "0123456789abcdef0123456789abcdef"

func newTestRedisStore(t *testing.T, options ...RedisStoreOption) (*RedisStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	store, err := NewRedisStore(append([]RedisStoreOption{WithRedisClient(rdb), WithKeyPrefix("test")}, options...)...)
	require.NoError(t, err)
	return store, mr
}

func newTestDiskStore(t *testing.T, options ...DiskStoreOption) *DiskStore {
	store, err := NewDiskStore(t.TempDir(), options...)
	require.NoError(t, err)
	return store
}

func testStores(t *testing.T) map[string]Store {
	redisStore, _ := newTestRedisStore(t)
	encryptor, err := NewGCMEncryptor(testEncryptionKey)
	require.NoError(t, err)
	encryptedRedisStore, _ := newTestRedisStore(t, WithEncryptor(encryptor))
	return map[string]Store{
		"memory":          NewMemoryStore(),
		"redis":           redisStore,
		"redis-encrypted": encryptedRedisStore,
		"disk":            newTestDiskStore(t),
		"disk-encrypted":  newTestDiskStore(t, WithDiskEncryptor(encryptor)),
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(ctx, models.AccessTokenKey)
			assert.ErrorIs(t, err, gwerrors.ErrCredentialNotFound)

			err = store.Set(ctx, models.AccessTokenKey, "tok1", models.SetOptions{ExpiresAt: time.Now().Add(time.Hour)})
			require.NoError(t, err)
			err = store.Set(ctx, models.RefreshTokenKey, "refresh1", models.SetOptions{})
			require.NoError(t, err)

			value, err := store.Get(ctx, models.AccessTokenKey)
			require.NoError(t, err)
			assert.Equal(t, "tok1", value)
			value, err = store.Get(ctx, models.RefreshTokenKey)
			require.NoError(t, err)
			assert.Equal(t, "refresh1", value)

			err = store.Set(ctx, models.AccessTokenKey, "tok2", models.SetOptions{})
			require.NoError(t, err)
			value, err = store.Get(ctx, models.AccessTokenKey)
			require.NoError(t, err)
			assert.Equal(t, "tok2", value)

			err = store.Remove(ctx, models.AccessTokenKey)
			require.NoError(t, err)
			_, err = store.Get(ctx, models.AccessTokenKey)
			assert.ErrorIs(t, err, gwerrors.ErrCredentialNotFound)
			// removing twice is fine
			assert.NoError(t, store.Remove(ctx, models.AccessTokenKey))
		})
	}
}

func TestStoreRejectsUnknownKeys(t *testing.T) {
	ctx := context.Background()
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			err := store.Set(ctx, models.CredentialKey("../../etc/passwd"), "value", models.SetOptions{})
			assert.Error(t, err)
		})
	}
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			for _, key := range models.AllCredentialKeys {
				require.NoError(t, store.Set(ctx, key, "value-"+string(key), models.SetOptions{}))
			}

			err := Clear(ctx, store)

			require.NoError(t, err)
			for _, key := range models.AllCredentialKeys {
				_, err := store.Get(ctx, key)
				assert.ErrorIs(t, err, gwerrors.ErrCredentialNotFound)
			}
		})
	}
}

type failingStore struct {
	*MemoryStore
	failOn models.CredentialKey
}

func (f failingStore) Remove(ctx context.Context, key models.CredentialKey) error {
	if key == f.failOn {
		return errors.New("store unavailable")
	}
	return f.MemoryStore.Remove(ctx, key)
}

func TestClearKeepsGoingOnError(t *testing.T) {
	ctx := context.Background()
	store := failingStore{MemoryStore: NewMemoryStore(), failOn: models.RefreshTokenKey}
	for _, key := range models.AllCredentialKeys {
		require.NoError(t, store.Set(ctx, key, "value", models.SetOptions{}))
	}

	err := Clear(ctx, store)

	assert.ErrorContains(t, err, "store unavailable")
	_, err = store.Get(ctx, models.AccessTokenKey)
	assert.ErrorIs(t, err, gwerrors.ErrCredentialNotFound)
	_, err = store.Get(ctx, models.RoleKey)
	assert.ErrorIs(t, err, gwerrors.ErrCredentialNotFound)
}
