package gateway

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/SwissDataScienceCenter/rentals-gateway/internal/credentials"
	"github.com/SwissDataScienceCenter/rentals-gateway/internal/tokenrefresher"
	"github.com/jonboulle/clockwork"
)

// ClientFactory builds an authenticated client on top of the credentials of one session.
type ClientFactory func(store credentials.Store) (AuthenticatedClient, error)

type pooledClient struct {
	client   AuthenticatedClient
	store    credentials.Store
	lastUsed time.Time
}

// clientPool keeps one authenticated client per session so that every session refreshes on
// its own and concurrent requests of a session share one refresh.
type clientPool struct {
	lock      sync.Mutex
	clients   map[string]*pooledClient
	provider  credentials.Provider
	newClient ClientFactory
	idleTTL   time.Duration
	clock     clockwork.Clock
}

func newClientPool(provider credentials.Provider, newClient ClientFactory, idleTTL time.Duration, clock clockwork.Clock) *clientPool {
	return &clientPool{
		clients:   map[string]*pooledClient{},
		provider:  provider,
		newClient: newClient,
		idleTTL:   idleTTL,
		clock:     clock,
	}
}

func (p *clientPool) get(sessionID string) (AuthenticatedClient, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	now := p.clock.Now()
	p.prune(now)
	entry, found := p.clients[sessionID]
	if !found {
		store, err := p.provider.Store(sessionID)
		if err != nil {
			return nil, err
		}
		client, err := p.newClient(store)
		if err != nil {
			return nil, err
		}
		entry = &pooledClient{client: client, store: store}
		p.clients[sessionID] = entry
	}
	entry.lastUsed = now
	return entry.client, nil
}

// prune drops the clients of sessions that have been idle for longer than a session may be.
// The credentials stay with the provider.
func (p *clientPool) prune(now time.Time) {
	if p.idleTTL <= 0 {
		return
	}
	for id, entry := range p.clients {
		if now.Sub(entry.lastUsed) > p.idleTTL {
			delete(p.clients, id)
		}
	}
}

// forget drops the client and the credentials of a session.
func (p *clientPool) forget(ctx context.Context, sessionID string) error {
	p.lock.Lock()
	delete(p.clients, sessionID)
	p.lock.Unlock()
	return p.provider.Forget(ctx, sessionID)
}

// Targets lists the sessions with a live client for the token refresher.
func (p *clientPool) Targets() []tokenrefresher.Target {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.prune(p.clock.Now())
	targets := make([]tokenrefresher.Target, 0, len(p.clients))
	for id, entry := range p.clients {
		targets = append(targets, tokenrefresher.Target{Name: id, Tokens: entry.store, Refresher: entry.client})
	}
	slog.Debug("GATEWAY", "message", "listing refresh targets", "count", len(targets))
	return targets
}
