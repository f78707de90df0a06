package lock

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T) redis.UniversalClient {
	t.Helper()

	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set; skipping lock integration tests")
	}

	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { client.Close() })

	require.NoError(t, client.Ping(context.Background()).Err())
	return client
}

func testKey() string {
	return "test::" + uuid.NewString()
}

func TestAcquireAndRelease(t *testing.T) {
	client := testClient(t)
	mgr := NewManager(client)
	key := testKey()

	lease, err := mgr.Acquire(context.Background(), key)
	require.NoError(t, err)

	exists, err := client.Exists(context.Background(), keyPrefix+key).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, exists)

	lease.Release()

	exists, err = client.Exists(context.Background(), keyPrefix+key).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 0, exists, "release must delete the lease key")
}

func TestAcquireBlocksUntilReleased(t *testing.T) {
	client := testClient(t)
	mgr := NewManager(client)
	key := testKey()

	first, err := mgr.Acquire(context.Background(), key)
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		second, err := mgr.Acquire(context.Background(), key)
		assert.NoError(t, err)
		if second != nil {
			second.Release()
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire must block while the lease is held")
	case <-time.After(300 * time.Millisecond):
	}

	first.Release()

	select {
	case <-acquired:
	case <-time.After(5 * time.Second):
		t.Fatal("second acquire must proceed after release")
	}
}

func TestAcquireHonorsContextCancellation(t *testing.T) {
	client := testClient(t)
	mgr := NewManager(client)
	key := testKey()

	lease, err := mgr.Acquire(context.Background(), key)
	require.NoError(t, err)
	defer lease.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	_, err = mgr.Acquire(ctx, key)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHeartbeatOutlivesLeaseDuration(t *testing.T) {
	client := testClient(t)
	mgr := &Manager{
		rdb:       client,
		lease:     400 * time.Millisecond,
		heartbeat: 100 * time.Millisecond,
		poll:      50 * time.Millisecond,
	}
	key := testKey()

	lease, err := mgr.Acquire(context.Background(), key)
	require.NoError(t, err)
	defer lease.Release()

	// hold well past the lease duration; the heartbeat keeps it alive
	time.Sleep(time.Second)

	exists, err := client.Exists(context.Background(), keyPrefix+key).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, exists, "heartbeat must extend a held lease past its duration")
}

func TestReleaseDoesNotDeleteForeignLease(t *testing.T) {
	client := testClient(t)
	mgr := NewManager(client)
	key := testKey()

	lease, err := mgr.Acquire(context.Background(), key)
	require.NoError(t, err)

	// another owner took the key over (as after a lease expiry)
	require.NoError(t, client.Set(context.Background(), keyPrefix+key, "other-owner", time.Minute).Err())
	defer client.Del(context.Background(), keyPrefix+key)

	lease.Release()

	val, err := client.Get(context.Background(), keyPrefix+key).Result()
	require.NoError(t, err)
	assert.Equal(t, "other-owner", val, "release must be a no-op on a lease we no longer own")
}
