package authclient

import (
	"context"
	"errors"
	"sync"

	"github.com/SwissDataScienceCenter/rentals-gateway/internal/metrics"
)

var errRefreshAborted = errors.New("the token refresh was aborted")

// RefreshFunc performs the actual refresh round-trip and returns the new access token.
type RefreshFunc func(ctx context.Context) (string, error)

// pendingRequest is a caller waiting on an in-flight refresh. It is settled exactly once.
type pendingRequest struct {
	done  chan struct{}
	token string
	err   error
}

func newPendingRequest() *pendingRequest {
	return &pendingRequest{done: make(chan struct{})}
}

func (p *pendingRequest) resolve(token string) {
	p.token = token
	close(p.done)
}

func (p *pendingRequest) reject(err error) {
	p.err = err
	close(p.done)
}

func (p *pendingRequest) wait(ctx context.Context) (string, error) {
	select {
	case <-p.done:
		return p.token, p.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// RefreshCoordinator makes sure that at most one refresh is in flight. Callers arriving while a
// refresh is running are queued and receive the outcome of that refresh.
type RefreshCoordinator struct {
	lock       sync.Mutex
	refreshing bool
	queue      []*pendingRequest
}

func NewRefreshCoordinator() *RefreshCoordinator {
	return &RefreshCoordinator{}
}

// Refresh runs refresh unless another refresh is in flight, in which case it waits for that one.
// The lock is never held while refresh runs.
func (rc *RefreshCoordinator) Refresh(ctx context.Context, refresh RefreshFunc) (string, error) {
	rc.lock.Lock()
	if rc.refreshing {
		pending := newPendingRequest()
		rc.queue = append(rc.queue, pending)
		metrics.RefreshWaiters.Inc()
		rc.lock.Unlock()
		return pending.wait(ctx)
	}
	rc.refreshing = true
	rc.lock.Unlock()

	settled := false
	defer func() {
		// refresh panicked, do not leave the queue hanging
		if !settled {
			rc.settle("", errRefreshAborted)
		}
	}()
	token, err := refresh(ctx)
	settled = true
	rc.settle(token, err)
	return token, err
}

// settle resets the refreshing flag and settles the queued callers in arrival order.
func (rc *RefreshCoordinator) settle(token string, err error) {
	rc.lock.Lock()
	queue := rc.queue
	rc.queue = nil
	rc.refreshing = false
	rc.lock.Unlock()

	metrics.RefreshWaiters.Sub(float64(len(queue)))
	for _, pending := range queue {
		if err != nil {
			pending.reject(err)
		} else {
			pending.resolve(token)
		}
	}
}

func (rc *RefreshCoordinator) Refreshing() bool {
	rc.lock.Lock()
	defer rc.lock.Unlock()
	return rc.refreshing
}

// Pending returns the number of callers waiting on the in-flight refresh.
func (rc *RefreshCoordinator) Pending() int {
	rc.lock.Lock()
	defer rc.lock.Unlock()
	return len(rc.queue)
}
