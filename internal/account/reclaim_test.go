package account

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockAndTakePassesReclaimedID(t *testing.T) {
	locks := newMemoryLockManager()
	deleted := newFakeDeletedStore()
	rm := NewReclaimManager(locks, deleted)

	previous := uuid.New()
	require.NoError(t, deleted.Put(context.Background(), previous, "+15551001"))

	var seen *uuid.UUID
	err := rm.LockAndTake(context.Background(), "+15551001", func(ctx context.Context, reclaimed *uuid.UUID) error {
		seen = reclaimed
		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.Equal(t, previous, *seen)

	// consumed after a successful action
	found, err := deleted.FindID(context.Background(), "+15551001")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestLockAndTakeWithoutRecord(t *testing.T) {
	rm := NewReclaimManager(newMemoryLockManager(), newFakeDeletedStore())

	var seen *uuid.UUID = &uuid.UUID{}
	err := rm.LockAndTake(context.Background(), "+15551002", func(ctx context.Context, reclaimed *uuid.UUID) error {
		seen = reclaimed
		return nil
	})
	require.NoError(t, err)
	assert.Nil(t, seen)
}

func TestLockAndTakeKeepsRecordOnFailure(t *testing.T) {
	locks := newMemoryLockManager()
	deleted := newFakeDeletedStore()
	rm := NewReclaimManager(locks, deleted)

	previous := uuid.New()
	require.NoError(t, deleted.Put(context.Background(), previous, "+15551003"))

	actionErr := errors.New("store unavailable")
	err := rm.LockAndTake(context.Background(), "+15551003", func(ctx context.Context, reclaimed *uuid.UUID) error {
		return actionErr
	})
	require.ErrorIs(t, err, actionErr)

	// the record survives for a later attempt, and the lease was released
	found, findErr := deleted.FindID(context.Background(), "+15551003")
	require.NoError(t, findErr)
	require.NotNil(t, found)
	assert.Equal(t, previous, *found)
	assert.Equal(t, 0, locks.held)
}

func TestLockAndPutRecordsDeletedID(t *testing.T) {
	deleted := newFakeDeletedStore()
	rm := NewReclaimManager(newMemoryLockManager(), deleted)

	removed := uuid.New()
	err := rm.LockAndPut(context.Background(), "+15551004", func(ctx context.Context) (*uuid.UUID, error) {
		return &removed, nil
	})
	require.NoError(t, err)

	found, err := deleted.FindID(context.Background(), "+15551004")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, removed, *found)
}

func TestLockAndPutNilWritesNothing(t *testing.T) {
	deleted := newFakeDeletedStore()
	rm := NewReclaimManager(newMemoryLockManager(), deleted)

	err := rm.LockAndPut(context.Background(), "+15551005", func(ctx context.Context) (*uuid.UUID, error) {
		return nil, nil
	})
	require.NoError(t, err)

	found, err := deleted.FindID(context.Background(), "+15551005")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestLockAndPutPairRecordsUnderOriginalNumber(t *testing.T) {
	deleted := newFakeDeletedStore()
	rm := NewReclaimManager(newMemoryLockManager(), deleted)

	displaced := uuid.New()
	err := rm.LockAndPutPair(context.Background(), "+15551006", "+15551007", func(ctx context.Context) (*uuid.UUID, error) {
		return &displaced, nil
	})
	require.NoError(t, err)

	// the displaced identity is reachable through the caller's old number,
	// not the number it was displaced from
	found, err := deleted.FindID(context.Background(), "+15551006")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, displaced, *found)

	found, err = deleted.FindID(context.Background(), "+15551007")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestLockAndPutPairAcquiresInSortedOrder(t *testing.T) {
	for _, pair := range [][2]string{
		{"+15551008", "+15551009"},
		{"+15551009", "+15551008"},
	} {
		locks := newMemoryLockManager()
		rm := NewReclaimManager(locks, newFakeDeletedStore())

		err := rm.LockAndPutPair(context.Background(), pair[0], pair[1], func(ctx context.Context) (*uuid.UUID, error) {
			return nil, nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"+15551008", "+15551009"}, locks.acquired,
			"lock order must not depend on which number is the original")
		assert.Equal(t, 0, locks.held)
	}
}

func TestWithLockReleasesOnAcquireFailure(t *testing.T) {
	locks := newMemoryLockManager()
	rm := NewReclaimManager(locks, newFakeDeletedStore())

	// hold the second key so the pair acquisition blocks, then cancel
	blocker, err := locks.Acquire(context.Background(), "+15551011")
	require.NoError(t, err)
	defer blocker.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = rm.LockAndPutPair(ctx, "+15551010", "+15551011", func(ctx context.Context) (*uuid.UUID, error) {
		t.Fatal("action must not run when acquisition fails")
		return nil, nil
	})
	require.Error(t, err)
	assert.Equal(t, 1, locks.held, "only the deliberately held lease remains")
}
