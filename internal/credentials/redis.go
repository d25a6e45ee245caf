package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SwissDataScienceCenter/rentals-gateway/internal/config"
	"github.com/SwissDataScienceCenter/rentals-gateway/internal/gwerrors"
	"github.com/SwissDataScienceCenter/rentals-gateway/internal/models"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps credentials in redis so that they survive restarts and can be shared
// between gateway replicas. Expiry is delegated to redis key TTLs.
type RedisStore struct {
	rdb       LimitedRedisClient
	keyPrefix string
	encryptor models.Encryptor
	maxTTL    time.Duration
}

func (r *RedisStore) key(key models.CredentialKey) string {
	if r.keyPrefix == "" {
		return string(key)
	}
	return r.keyPrefix + ":" + string(key)
}

func (r *RedisStore) Get(ctx context.Context, key models.CredentialKey) (string, error) {
	value, err := r.rdb.Get(ctx, r.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", gwerrors.ErrCredentialNotFound
		}
		return "", err
	}
	if r.encryptor == nil {
		return value, nil
	}
	return r.encryptor.Decrypt(value)
}

func (r *RedisStore) Set(ctx context.Context, key models.CredentialKey, value string, opts models.SetOptions) error {
	err := key.Validate()
	if err != nil {
		return err
	}
	var ttl time.Duration
	if !opts.ExpiresAt.IsZero() {
		ttl = time.Until(opts.ExpiresAt)
		if ttl <= 0 {
			// Storing an already expired value is the same as removing it
			return r.Remove(ctx, key)
		}
	}
	if r.maxTTL > 0 && (ttl == 0 || ttl > r.maxTTL) {
		ttl = r.maxTTL
	}
	if r.encryptor != nil {
		value, err = r.encryptor.Encrypt(value)
		if err != nil {
			return err
		}
	}
	slog.Debug("CREDENTIALS", "message", "saving credential", "key", key, "expiresAt", opts.ExpiresAt)
	return r.rdb.Set(ctx, r.key(key), value, ttl).Err()
}

func (r *RedisStore) Remove(ctx context.Context, key models.CredentialKey) error {
	return r.rdb.Del(ctx, r.key(key)).Err()
}

type RedisStoreOption func(*RedisStore) error

func WithRedisConfig(redisConfig config.RedisConfig) RedisStoreOption {
	return func(r *RedisStore) error {
		rdb, err := NewRedisClient(redisConfig)
		if err != nil {
			return err
		}
		r.rdb = rdb
		r.keyPrefix = redisConfig.KeyPrefix
		return nil
	}
}

// NewRedisClient connects to a single redis instance or to the master behind sentinels.
func NewRedisClient(redisConfig config.RedisConfig) (*redis.Client, error) {
	if redisConfig.IsSentinel {
		return redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:       redisConfig.MasterName,
			SentinelAddrs:    redisConfig.Addresses,
			Password:         string(redisConfig.Password),
			DB:               redisConfig.DBIndex,
			SentinelPassword: string(redisConfig.Password),
		}), nil
	}
	if len(redisConfig.Addresses) == 0 {
		return nil, fmt.Errorf("no redis address provided")
	}
	return redis.NewClient(&redis.Options{
		Password: string(redisConfig.Password),
		DB:       redisConfig.DBIndex,
		Addr:     redisConfig.Addresses[0],
	}), nil
}

func WithRedisClient(rdb LimitedRedisClient) RedisStoreOption {
	return func(r *RedisStore) error {
		r.rdb = rdb
		return nil
	}
}

func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(r *RedisStore) error {
		r.keyPrefix = prefix
		return nil
	}
}

// WithMaxTTL bounds the lifetime of every key, values without an expiry included.
func WithMaxTTL(maxTTL time.Duration) RedisStoreOption {
	return func(r *RedisStore) error {
		r.maxTTL = maxTTL
		return nil
	}
}

func WithEncryptor(encryptor models.Encryptor) RedisStoreOption {
	return func(r *RedisStore) error {
		r.encryptor = encryptor
		return nil
	}
}

func NewRedisStore(options ...RedisStoreOption) (*RedisStore, error) {
	store := RedisStore{}
	for _, opt := range options {
		err := opt(&store)
		if err != nil {
			return &RedisStore{}, err
		}
	}
	if store.rdb == nil {
		return &RedisStore{}, fmt.Errorf("redis client is not initialized")
	}
	return &store, nil
}
