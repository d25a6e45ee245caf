package sessions

import (
	"context"
	"sync"

	"github.com/SwissDataScienceCenter/rentals-gateway/internal/gwerrors"
)

type InMemorySessionRepository struct {
	lock     *sync.RWMutex
	sessions map[string]Session
}

func (db *InMemorySessionRepository) GetSession(ctx context.Context, id string) (Session, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()
	session, found := db.sessions[id]
	if !found {
		return Session{}, gwerrors.ErrSessionNotFound
	}
	return session, nil
}

func (db *InMemorySessionRepository) SetSession(ctx context.Context, session Session) error {
	db.lock.Lock()
	defer db.lock.Unlock()
	db.sessions[session.ID] = session
	return nil
}

func (db *InMemorySessionRepository) RemoveSession(ctx context.Context, id string) error {
	db.lock.Lock()
	defer db.lock.Unlock()
	delete(db.sessions, id)
	return nil
}

func NewInMemorySessionRepository() *InMemorySessionRepository {
	return &InMemorySessionRepository{lock: &sync.RWMutex{}, sessions: map[string]Session{}}
}
