package account

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/relaymesh/server/internal/repo"
)

// ReclaimManager serializes cross-record operations on phone numbers and
// maintains the reclamation records that preserve identity continuity when a
// number is freed and later re-registered. Locks are pessimistic and held for
// the full duration of the nested store operations.
type ReclaimManager struct {
	locks   LockManager
	deleted repo.DeletedAccountRepo
}

// NewReclaimManager creates a new ReclaimManager instance.
func NewReclaimManager(locks LockManager, deleted repo.DeletedAccountRepo) *ReclaimManager {
	return &ReclaimManager{locks: locks, deleted: deleted}
}

// LockAndTake locks the number, invokes action with the identifier that
// previously owned it (nil when none), and consumes the reclamation record.
// The record is removed only after action succeeds; on error it stays in
// place for a later attempt.
func (rm *ReclaimManager) LockAndTake(ctx context.Context, number string, action func(ctx context.Context, reclaimed *uuid.UUID) error) error {
	return rm.withLock(ctx, []string{number}, func(ctx context.Context) error {
		reclaimed, err := rm.deleted.FindID(ctx, number)
		if err != nil {
			return fmt.Errorf("find reclamation record for number: %w", err)
		}
		if err := action(ctx, reclaimed); err != nil {
			return err
		}
		return rm.deleted.Remove(ctx, number)
	})
}

// LockAndPut locks the number and invokes action, which performs a deletion
// and returns the deleted identifier (nil when nothing was deleted). The
// identifier is recorded under the number for later reclamation.
func (rm *ReclaimManager) LockAndPut(ctx context.Context, number string, action func(ctx context.Context) (*uuid.UUID, error)) error {
	return rm.withLock(ctx, []string{number}, func(ctx context.Context) error {
		return rm.runAndRecord(ctx, number, action)
	})
}

// LockAndPutPair locks both numbers and invokes action; a returned identifier
// is recorded under originalNumber, so the displaced identity can later be
// recovered through its old number.
func (rm *ReclaimManager) LockAndPutPair(ctx context.Context, originalNumber, targetNumber string, action func(ctx context.Context) (*uuid.UUID, error)) error {
	return rm.withLock(ctx, []string{originalNumber, targetNumber}, func(ctx context.Context) error {
		return rm.runAndRecord(ctx, originalNumber, action)
	})
}

func (rm *ReclaimManager) runAndRecord(ctx context.Context, number string, action func(ctx context.Context) (*uuid.UUID, error)) error {
	deletedID, err := action(ctx)
	if err != nil {
		return err
	}
	if deletedID == nil {
		return nil
	}
	if err := rm.deleted.Put(ctx, *deletedID, number); err != nil {
		return fmt.Errorf("record reclaimed identifier for number: %w", err)
	}
	return nil
}

// withLock acquires leases for all keys in a fixed total order, runs task,
// and releases the leases on every exit path. Sorting prevents deadlock
// between two callers that lock the same pair of numbers in opposite roles.
func (rm *ReclaimManager) withLock(ctx context.Context, keys []string, task func(ctx context.Context) error) error {
	ordered := append([]string(nil), keys...)
	sort.Strings(ordered)

	leases := make([]Unlocker, 0, len(ordered))
	defer func() {
		for i := len(leases) - 1; i >= 0; i-- {
			leases[i].Release()
		}
	}()

	for _, key := range ordered {
		lease, err := rm.locks.Acquire(ctx, key)
		if err != nil {
			return fmt.Errorf("acquire number lock: %w", err)
		}
		leases = append(leases, lease)
	}

	return task(ctx)
}
