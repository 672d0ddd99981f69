package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/arbor/pkg/ports"
	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

var (
	// ErrLockAcquire is returned when Redis fails while a lock is polled.
	ErrLockAcquire = errors.New("failed to acquire distributed lock")
	// ErrLockLost is returned by an unlock whose lease had already expired
	// or passed to another holder.
	ErrLockLost = errors.New("distributed lock lost before release")
)

// release deletes KEYS[1] only while it still carries the holder's token.
var release = backend.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

var _ ports.DistributedLocker = (*Locker)(nil)

// DefaultPollInterval is how often a contended lock is retried.
const DefaultPollInterval = 100 * time.Millisecond

// Locker implements ports.DistributedLocker with SET NX leases. Each
// acquisition writes a fresh token so a late unlock cannot free a lease
// someone else holds.
type Locker struct {
	client *backend.Client
	prefix string
	poll   time.Duration
}

// NewLocker creates a locker whose keys are prefix + "lock:" + key.
func NewLocker(client *backend.Client, prefix string) *Locker {
	return &Locker{client: client, prefix: prefix, poll: DefaultPollInterval}
}

// Lock implements ports.DistributedLocker. It retries until the lease is
// granted or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	lease := l.prefix + "lock:" + key
	token := uuid.NewString()

	for {
		granted, err := l.client.SetNX(ctx, lease, token, ttl).Result()
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			return nil, fmt.Errorf("%w: %v", ErrLockAcquire, err)
		case granted:
			return l.unlocker(lease, token), nil
		}

		timer := time.NewTimer(l.poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *Locker) unlocker(lease, token string) ports.UnlockFunc {
	return func(ctx context.Context) error {
		n, err := release.Run(ctx, l.client, []string{lease}, token).Int()
		if err != nil {
			return fmt.Errorf("failed to release %s: %w", lease, err)
		}
		if n == 0 {
			return ErrLockLost
		}
		return nil
	}
}
