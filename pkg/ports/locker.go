package ports

import (
	"context"
	"time"
)

// UnlockFunc releases a lease taken by DistributedLocker.Lock.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker serializes work on one run across engine replicas that
// share a checkpoint store. session.Manager takes it around every load,
// resume and save of a run ID.
type DistributedLocker interface {
	// Lock blocks until the lease on key (a run ID) is held or ctx is done.
	// The lease expires after ttl if its holder dies without unlocking.
	// The returned UnlockFunc must be called once the run is saved.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
