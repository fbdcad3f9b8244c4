package payments

import (
	"context"
	"sync"
	"time"

	"github.com/ariefcatur/go-storefront-core/internal/apperr"
)

// Gateway is what the session manager needs from the payment gateway.
type Gateway interface {
	CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (string, error)
	VerifySignature(gatewayOrderID, gatewayPaymentID, signature string) error
	PublishableKey() string
}

// Locker serialises session creation per order. Implemented by
// redisx.Locker across processes and by LocalLocker in one process.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl, wait time.Duration) (release func(), err error)
}

// Deduper remembers delivered callback ids.
type Deduper interface {
	FirstSeen(ctx context.Context, scope, id string) (bool, error)
	Forget(ctx context.Context, scope, id string) error
}

// LocalLocker is an in-process Locker. ttl is ignored; a lock is held
// until released.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: map[string]chan struct{}{}}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string, _, wait time.Duration) (func(), error) {
	l.mu.Lock()
	sem, ok := l.held[key]
	if !ok {
		sem = make(chan struct{}, 1)
		l.held[key] = sem
	}
	l.mu.Unlock()

	release := func() func() {
		var once sync.Once
		return func() { once.Do(func() { <-sem }) }
	}

	select {
	case sem <- struct{}{}:
		return release(), nil
	default:
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case sem <- struct{}{}:
		return release(), nil
	case <-timer.C:
		return nil, apperr.Conflict("%s is held by another request", key)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// LocalDeduper keeps seen ids in memory for the life of the process.
type LocalDeduper struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewLocalDeduper() *LocalDeduper {
	return &LocalDeduper{seen: map[string]struct{}{}}
}

func (d *LocalDeduper) FirstSeen(_ context.Context, scope, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	k := scope + ":" + id
	if _, ok := d.seen[k]; ok {
		return false, nil
	}
	d.seen[k] = struct{}{}
	return true, nil
}

func (d *LocalDeduper) Forget(_ context.Context, scope, id string) error {
	d.mu.Lock()
	delete(d.seen, scope+":"+id)
	d.mu.Unlock()
	return nil
}
