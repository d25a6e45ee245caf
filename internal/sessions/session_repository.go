package sessions

import (
	"context"

	"github.com/SwissDataScienceCenter/rentals-gateway/internal/config"
	"github.com/SwissDataScienceCenter/rentals-gateway/internal/credentials"
)

type SessionGetter interface {
	GetSession(ctx context.Context, id string) (Session, error)
}

type SessionSetter interface {
	SetSession(ctx context.Context, session Session) error
}

type SessionRemover interface {
	RemoveSession(ctx context.Context, id string) error
}

// SessionRepository persists sessions. GetSession returns gwerrors.ErrSessionNotFound for
// unknown IDs.
type SessionRepository interface {
	SessionGetter
	SessionSetter
	SessionRemover
}

// NewSessionRepository keeps the sessions in redis when the credentials live there and in
// memory otherwise.
func NewSessionRepository(credentialsConfig config.CredentialsConfig, rdb credentials.LimitedRedisClient) SessionRepository {
	if credentialsConfig.Type == config.CredentialsTypeRedis && rdb != nil {
		return NewRedisSessionRepository(rdb, credentialsConfig.Redis.KeyPrefix)
	}
	return NewInMemorySessionRepository()
}
