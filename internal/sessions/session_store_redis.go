package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/SwissDataScienceCenter/rentals-gateway/internal/credentials"
	"github.com/SwissDataScienceCenter/rentals-gateway/internal/gwerrors"
	"github.com/redis/go-redis/v9"
)

// RedisSessionRepository shares sessions between gateway replicas. A session key expires
// together with the session.
type RedisSessionRepository struct {
	rdb       credentials.LimitedRedisClient
	keyPrefix string
}

func (r *RedisSessionRepository) key(id string) string {
	if r.keyPrefix == "" {
		return "sessions:" + id
	}
	return r.keyPrefix + ":sessions:" + id
}

func (r *RedisSessionRepository) GetSession(ctx context.Context, id string) (Session, error) {
	raw, err := r.rdb.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, gwerrors.ErrSessionNotFound
		}
		return Session{}, err
	}
	var session Session
	err = json.Unmarshal(raw, &session)
	if err != nil {
		return Session{}, err
	}
	return session, nil
}

func (r *RedisSessionRepository) SetSession(ctx context.Context, session Session) error {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return r.RemoveSession(ctx, session.ID)
	}
	raw, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, r.key(session.ID), raw, ttl).Err()
}

func (r *RedisSessionRepository) RemoveSession(ctx context.Context, id string) error {
	return r.rdb.Del(ctx, r.key(id)).Err()
}

func NewRedisSessionRepository(rdb credentials.LimitedRedisClient, keyPrefix string) *RedisSessionRepository {
	return &RedisSessionRepository{rdb: rdb, keyPrefix: keyPrefix}
}
