package account

import (
	"context"

	"github.com/google/uuid"
	"github.com/relaymesh/server/internal/lock"
	"github.com/relaymesh/server/internal/model"
)

// Cache is the non-authoritative account cache. Errors are transient failures
// the manager treats as misses; correctness never depends on an entry being
// present.
type Cache interface {
	GetByNumber(ctx context.Context, number string) (*model.Account, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error)
	Set(ctx context.Context, account *model.Account) error
	Delete(ctx context.Context, account *model.Account) error
}

// Unlocker releases a held lease. Release is best-effort; an unreleased lease
// expires on its own.
type Unlocker interface {
	Release()
}

// LockManager grants lease-based mutual exclusion keyed by arbitrary strings.
type LockManager interface {
	// Acquire blocks until the lease is granted or ctx is cancelled.
	Acquire(ctx context.Context, key string) (Unlocker, error)
}

// PresenceTracker disconnects live client sessions for a device.
type PresenceTracker interface {
	DisplacePresence(ctx context.Context, accountID uuid.UUID, deviceID int) error
}

// PendingAccountStore holds not-yet-verified registration codes per number.
type PendingAccountStore interface {
	Remove(ctx context.Context, number string) error
}

// RemoteStorageClient deletes account data held by an external service.
type RemoteStorageClient interface {
	DeleteData(ctx context.Context, accountID uuid.UUID) error
}

type redisLockManager struct {
	mgr *lock.Manager
}

// NewRedisLockManager adapts the Redis lease lock manager to LockManager.
func NewRedisLockManager(mgr *lock.Manager) LockManager {
	return redisLockManager{mgr: mgr}
}

func (r redisLockManager) Acquire(ctx context.Context, key string) (Unlocker, error) {
	lease, err := r.mgr.Acquire(ctx, key)
	if err != nil {
		return nil, err
	}
	return lease, nil
}
