// Package lock implements lease-based distributed mutual exclusion over
// Redis, keyed by arbitrary strings. A lease is granted to exactly one owner
// at a time, extended by a background heartbeat while held, and expires on its
// own if the holding process dies mid-critical-section.
package lock

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultLeaseDuration bounds how long a crashed holder can block others.
	DefaultLeaseDuration = 15 * time.Second
	// DefaultHeartbeatPeriod is how often a held lease is extended.
	DefaultHeartbeatPeriod = 2 * time.Second
	// DefaultPollInterval is how often a blocked acquirer re-attempts.
	DefaultPollInterval = 100 * time.Millisecond

	keyPrefix = "lock::"
)

// extendScript refreshes the lease only while we still own it.
var extendScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// releaseScript deletes the lease only while we still own it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Manager acquires and releases leases.
type Manager struct {
	rdb       redis.UniversalClient
	lease     time.Duration
	heartbeat time.Duration
	poll      time.Duration
}

// NewManager creates a lock manager with the default lease timings.
func NewManager(rdb redis.UniversalClient) *Manager {
	return &Manager{
		rdb:       rdb,
		lease:     DefaultLeaseDuration,
		heartbeat: DefaultHeartbeatPeriod,
		poll:      DefaultPollInterval,
	}
}

// Lease is a held lock. Release it exactly once; releasing is best-effort and
// a failed release is recovered by lease expiry.
type Lease struct {
	mgr   *Manager
	key   string
	owner string
	stop  chan struct{}
	done  chan struct{}
}

// Acquire blocks until the lease for key is granted or ctx is cancelled.
// Cancellation propagates as ctx.Err(); it is never swallowed.
func (m *Manager) Acquire(ctx context.Context, key string) (*Lease, error) {
	owner := uuid.NewString()
	redisKey := keyPrefix + key

	for {
		ok, err := m.rdb.SetNX(ctx, redisKey, owner, m.lease).Result()
		if err != nil {
			return nil, fmt.Errorf("lock acquire %q: %w", key, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.poll):
		}
	}

	lease := &Lease{
		mgr:   m,
		key:   redisKey,
		owner: owner,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go lease.heartbeatLoop()
	return lease, nil
}

// heartbeatLoop extends the lease until Release is called. Extension uses a
// detached context: the critical section may outlive the acquire context's
// deadline without losing the lock.
func (l *Lease) heartbeatLoop() {
	defer close(l.done)

	ticker := time.NewTicker(l.mgr.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.mgr.heartbeat)
			extended, err := extendScript.Run(ctx, l.mgr.rdb, []string{l.key}, l.owner, l.mgr.lease.Milliseconds()).Int()
			cancel()
			if err != nil {
				log.Printf("lock heartbeat failed for %s: %v", l.key, err)
				continue
			}
			if extended == 0 {
				// Ownership lost (lease expired or taken over); nothing
				// further to extend.
				log.Printf("lock lease lost for %s", l.key)
				return
			}
		}
	}
}

// Release stops the heartbeat and deletes the lease if still owned. Failure
// to release is logged, not returned: the lease expires on its own.
func (l *Lease) Release() {
	close(l.stop)
	<-l.done

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := releaseScript.Run(ctx, l.mgr.rdb, []string{l.key}, l.owner).Err(); err != nil {
		log.Printf("lock release failed for %s: %v", l.key, err)
	}
}
