package cache

import (
	"context"
	"sync"

	"github.com/erp/backoffice/internal/domain/billing"
)

// keyLock is a one-slot semaphore shared by every caller waiting on a key
type keyLock struct {
	slot chan struct{}
	refs int
}

// LocalRefundGuard serializes refunds per scope inside one process.
// It is suitable for single-instance deployments and testing; replicas
// behind a load balancer need the Redis or advisory guard.
type LocalRefundGuard struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

// NewLocalRefundGuard creates a new in-process refund guard
func NewLocalRefundGuard() *LocalRefundGuard {
	return &LocalRefundGuard{locks: make(map[string]*keyLock)}
}

// Guard runs fn while holding the lock for key. Waiting for the lock
// stops when ctx is done.
func (g *LocalRefundGuard) Guard(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	lock := g.acquire(key)
	defer g.release(key, lock)

	select {
	case lock.slot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-lock.slot }()

	return fn(ctx)
}

func (g *LocalRefundGuard) acquire(key string) *keyLock {
	g.mu.Lock()
	defer g.mu.Unlock()

	lock, ok := g.locks[key]
	if !ok {
		lock = &keyLock{slot: make(chan struct{}, 1)}
		g.locks[key] = lock
	}
	lock.refs++
	return lock
}

func (g *LocalRefundGuard) release(key string, lock *keyLock) {
	g.mu.Lock()
	defer g.mu.Unlock()

	lock.refs--
	if lock.refs == 0 {
		delete(g.locks, key)
	}
}

// Size returns the number of keys currently held or awaited (for testing/monitoring)
func (g *LocalRefundGuard) Size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.locks)
}

// Ensure LocalRefundGuard implements billing.RefundGuard
var _ billing.RefundGuard = (*LocalRefundGuard)(nil)
