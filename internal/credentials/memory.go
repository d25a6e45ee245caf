package credentials

import (
	"context"
	"sync"

	"github.com/SwissDataScienceCenter/rentals-gateway/internal/gwerrors"
	"github.com/SwissDataScienceCenter/rentals-gateway/internal/models"
	"github.com/jonboulle/clockwork"
)

type memoryEntry struct {
	value string
	opts  models.SetOptions
}

// MemoryStore keeps credentials for the lifetime of the process only.
type MemoryStore struct {
	lock    sync.RWMutex
	entries map[models.CredentialKey]memoryEntry
	clock   clockwork.Clock
}

type MemoryStoreOption func(*MemoryStore)

func WithClock(clock clockwork.Clock) MemoryStoreOption {
	return func(m *MemoryStore) {
		m.clock = clock
	}
}

func NewMemoryStore(options ...MemoryStoreOption) *MemoryStore {
	store := MemoryStore{
		entries: map[models.CredentialKey]memoryEntry{},
		clock:   clockwork.NewRealClock(),
	}
	for _, opt := range options {
		opt(&store)
	}
	return &store
}

func (m *MemoryStore) Get(_ context.Context, key models.CredentialKey) (string, error) {
	m.lock.RLock()
	entry, found := m.entries[key]
	m.lock.RUnlock()
	if !found || entry.opts.Expired(m.clock.Now()) {
		return "", gwerrors.ErrCredentialNotFound
	}
	return entry.value, nil
}

func (m *MemoryStore) Set(_ context.Context, key models.CredentialKey, value string, opts models.SetOptions) error {
	err := key.Validate()
	if err != nil {
		return err
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	m.entries[key] = memoryEntry{value: value, opts: opts}
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, key models.CredentialKey) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.entries, key)
	return nil
}
