package credentials

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/SwissDataScienceCenter/rentals-gateway/internal/config"
	"github.com/SwissDataScienceCenter/rentals-gateway/internal/gwerrors"
	"github.com/SwissDataScienceCenter/rentals-gateway/internal/models"
	"github.com/jonboulle/clockwork"
)

// Provider hands out one Store per browser session, the credentials of one session are never
// visible through the store of another.
type Provider interface {
	Store(sessionID string) (Store, error)
	// Forget drops everything kept for the session.
	Forget(ctx context.Context, sessionID string) error
}

// ValidateSessionID accepts the alphanumeric IDs handed out by the session store. Anything else
// could escape the key prefix or the directory of the session.
func ValidateSessionID(sessionID string) error {
	if sessionID == "" || len(sessionID) > 64 {
		return fmt.Errorf("%w: %q", gwerrors.ErrInvalidSessionID, sessionID)
	}
	for _, r := range sessionID {
		if !('0' <= r && r <= '9' || 'a' <= r && r <= 'z' || 'A' <= r && r <= 'Z') {
			return fmt.Errorf("%w: %q", gwerrors.ErrInvalidSessionID, sessionID)
		}
	}
	return nil
}

type memoryProviderEntry struct {
	store    *MemoryStore
	lastUsed time.Time
}

// MemoryProvider keeps one MemoryStore per session. Stores left alone for longer than the idle
// TTL are dropped on the next lookup.
type MemoryProvider struct {
	lock    sync.Mutex
	entries map[string]*memoryProviderEntry
	idleTTL time.Duration
	clock   clockwork.Clock
}

func NewMemoryProvider(idleTTL time.Duration, clock clockwork.Clock) *MemoryProvider {
	return &MemoryProvider{entries: map[string]*memoryProviderEntry{}, idleTTL: idleTTL, clock: clock}
}

func (p *MemoryProvider) Store(sessionID string) (Store, error) {
	err := ValidateSessionID(sessionID)
	if err != nil {
		return nil, err
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	now := p.clock.Now()
	if p.idleTTL > 0 {
		for id, entry := range p.entries {
			if id != sessionID && now.Sub(entry.lastUsed) > p.idleTTL {
				delete(p.entries, id)
			}
		}
	}
	entry, found := p.entries[sessionID]
	if !found {
		entry = &memoryProviderEntry{store: NewMemoryStore(WithClock(p.clock))}
		p.entries[sessionID] = entry
	}
	entry.lastUsed = now
	return entry.store, nil
}

func (p *MemoryProvider) Forget(_ context.Context, sessionID string) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	delete(p.entries, sessionID)
	return nil
}

// RedisProvider shares one redis client between sessions and namespaces the keys of each
// session. Keys never outlive the maximum session lifetime.
type RedisProvider struct {
	rdb       LimitedRedisClient
	keyPrefix string
	maxTTL    time.Duration
	encryptor models.Encryptor
}

func (p *RedisProvider) Store(sessionID string) (Store, error) {
	err := ValidateSessionID(sessionID)
	if err != nil {
		return nil, err
	}
	options := []RedisStoreOption{
		WithRedisClient(p.rdb),
		WithKeyPrefix(sessionKeyPrefix(p.keyPrefix, sessionID)),
		WithMaxTTL(p.maxTTL),
	}
	if p.encryptor != nil {
		options = append(options, WithEncryptor(p.encryptor))
	}
	return NewRedisStore(options...)
}

func (p *RedisProvider) Forget(ctx context.Context, sessionID string) error {
	store, err := p.Store(sessionID)
	if err != nil {
		return err
	}
	return Clear(ctx, store)
}

func sessionKeyPrefix(prefix, sessionID string) string {
	if prefix == "" {
		return "credentials:" + sessionID
	}
	return prefix + ":credentials:" + sessionID
}

// DiskProvider gives every session its own directory below the base path.
type DiskProvider struct {
	basePath string
	options  []DiskStoreOption
}

func (p *DiskProvider) Store(sessionID string) (Store, error) {
	return p.diskStore(sessionID)
}

func (p *DiskProvider) diskStore(sessionID string) (*DiskStore, error) {
	err := ValidateSessionID(sessionID)
	if err != nil {
		return nil, err
	}
	return NewDiskStore(filepath.Join(p.basePath, sessionID), p.options...)
}

func (p *DiskProvider) Forget(_ context.Context, sessionID string) error {
	store, err := p.diskStore(sessionID)
	if err != nil {
		return err
	}
	return store.eraseAll()
}

// NewProvider builds the per-session provider selected in the configuration. The redis client
// is only used, and then required, by the redis provider.
func NewProvider(
	credentialsConfig config.CredentialsConfig,
	sessionConfig config.SessionConfig,
	rdb LimitedRedisClient,
) (Provider, error) {
	var encryptor models.Encryptor
	if credentialsConfig.Encryption.Enabled {
		enc, err := NewGCMEncryptor(string(credentialsConfig.Encryption.SecretKey))
		if err != nil {
			return nil, err
		}
		encryptor = enc
	}
	slog.Debug("CREDENTIALS", "message", "setting up the credentials provider", "type", credentialsConfig.Type)
	switch credentialsConfig.Type {
	case config.CredentialsTypeMemory:
		// the encryptor is pointless for values that never leave the process
		return NewMemoryProvider(sessionConfig.IdleTTL(), clockwork.NewRealClock()), nil
	case config.CredentialsTypeRedis:
		if rdb == nil {
			return nil, fmt.Errorf("redis client is not initialized")
		}
		return &RedisProvider{
			rdb:       rdb,
			keyPrefix: credentialsConfig.Redis.KeyPrefix,
			maxTTL:    sessionConfig.MaxTTL(),
			encryptor: encryptor,
		}, nil
	case config.CredentialsTypeDisk:
		options := []DiskStoreOption{}
		if encryptor != nil {
			options = append(options, WithDiskEncryptor(encryptor))
		}
		return &DiskProvider{basePath: credentialsConfig.Disk.Path, options: options}, nil
	default:
		return nil, fmt.Errorf("unrecognized credentials type %v", credentialsConfig.Type)
	}
}
