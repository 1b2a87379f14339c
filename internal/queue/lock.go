package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotAcquired is returned when AcquireLock can't obtain the lock
// within its wait budget. The orchestrator then drops the job rather than
// run it concurrently with whatever else holds the customer's lock.
var ErrLockNotAcquired = errors.New("queue: lock not acquired")

// Lock is a Redis-backed mutual-exclusion lock scoped to one customer, so
// two jobs for the same customer never run concurrently while jobs for
// different customers still execute in parallel.
type Lock struct {
	rdb   *redis.Client
	key   string
	token string
}

const lockLease = 300 * time.Second

// AcquireLock blocks (polling) up to waitFor trying to set the customer's
// lock key, matching the acquire-wait budget the original dispatch loop
// used. The returned Lock must be released with Release once the job
// finishes.
func AcquireLock(ctx context.Context, rdb *redis.Client, customerID uuid.UUID, waitFor time.Duration) (*Lock, error) {
	key := fmt.Sprintf("operator:lock:%s", customerID)
	token := uuid.NewString()

	deadline := time.Now().Add(waitFor)
	for {
		ok, err := rdb.SetNX(ctx, key, token, lockLease).Result()
		if err != nil {
			return nil, fmt.Errorf("acquiring lock %s: %w", key, err)
		}
		if ok {
			return &Lock{rdb: rdb, key: key, token: token}, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrLockNotAcquired
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// releaseScript only deletes the key if it still holds our token, so a
// lock we lost to lease expiry is never deleted out from under whoever
// re-acquired it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// Release drops the lock if we still own it. A lock lost to lease expiry
// (the job ran longer than 300s) is tolerated silently, the same way the
// original dispatch loop swallowed LockNotOwnedError on release.
func (l *Lock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("releasing lock %s: %w", l.key, err)
	}
	return nil
}
