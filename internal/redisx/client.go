package redisx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-storefront-core/internal/apperr"
)

func New(ctx context.Context, addr string) (*redis.Client, error) {
	r := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.Ping(pctx).Err(); err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return r, nil
}

// releaseScript deletes the lock only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Locker is a SET NX PX mutex. A lock expires after its ttl even if the
// holder crashes.
type Locker struct {
	rdb  *redis.Client
	poll time.Duration
}

func NewLocker(rdb *redis.Client) *Locker {
	return &Locker{rdb: rdb, poll: 50 * time.Millisecond}
}

// Acquire waits up to wait for the lock. It fails with Conflict when the
// lock stays held.
func (l *Locker) Acquire(ctx context.Context, key string, ttl, wait time.Duration) (func(), error) {
	token := uuid.NewString()
	deadline := time.Now().Add(wait)
	for {
		ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			return func() {
				// detached so a cancelled request still frees the lock
				rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = releaseScript.Run(rctx, l.rdb, []string{key}, token).Err()
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, apperr.Conflict("%s is held by another request", key)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.poll):
		}
	}
}

// Deduper remembers processed event ids.
type Deduper struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewDeduper(rdb *redis.Client) *Deduper {
	return &Deduper{rdb: rdb, ttl: TTLDedup}
}

// FirstSeen marks id as seen and reports whether this call was the first.
func (d *Deduper) FirstSeen(ctx context.Context, scope, id string) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, DedupKey(scope, id), "1", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup %s/%s: %w", scope, id, err)
	}
	return ok, nil
}

// Forget drops the mark so a redelivery is processed again.
func (d *Deduper) Forget(ctx context.Context, scope, id string) error {
	err := d.rdb.Del(ctx, DedupKey(scope, id)).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("forget %s/%s: %w", scope, id, err)
	}
	return nil
}
