// Package presence tracks which server a device's live session is connected
// to, in Redis, and lets the account core displace sessions when an account
// is deleted or taken over.
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix       = "presence::"
	displaceChannel = "presence::displaced"

	// presence entries expire if the owning server stops refreshing them
	presenceTTL = 2 * time.Minute
)

// Tracker records and displaces device presence.
type Tracker struct {
	rdb redis.UniversalClient
}

// NewTracker creates a new presence tracker.
func NewTracker(rdb redis.UniversalClient) *Tracker {
	return &Tracker{rdb: rdb}
}

func presenceKey(accountID uuid.UUID, deviceID int) string {
	return fmt.Sprintf("%s%s::%d", keyPrefix, accountID, deviceID)
}

// SetPresent marks the device as connected to the given server instance.
func (t *Tracker) SetPresent(ctx context.Context, accountID uuid.UUID, deviceID int, serverID string) error {
	if err := t.rdb.Set(ctx, presenceKey(accountID, deviceID), serverID, presenceTTL).Err(); err != nil {
		return fmt.Errorf("set presence: %w", err)
	}
	return nil
}

// IsPresent reports whether the device currently has a live session.
func (t *Tracker) IsPresent(ctx context.Context, accountID uuid.UUID, deviceID int) (bool, error) {
	n, err := t.rdb.Exists(ctx, presenceKey(accountID, deviceID)).Result()
	if err != nil {
		return false, fmt.Errorf("check presence: %w", err)
	}
	return n > 0, nil
}

// DisplacePresence removes the device's presence entry and notifies whichever
// server holds the session so it can force a disconnect.
func (t *Tracker) DisplacePresence(ctx context.Context, accountID uuid.UUID, deviceID int) error {
	key := presenceKey(accountID, deviceID)

	pipe := t.rdb.Pipeline()
	pipe.Del(ctx, key)
	pipe.Publish(ctx, displaceChannel, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("displace presence: %w", err)
	}
	return nil
}

// Refresh extends the device's presence entry; sessions call this on a timer.
func (t *Tracker) Refresh(ctx context.Context, accountID uuid.UUID, deviceID int) error {
	if err := t.rdb.Expire(ctx, presenceKey(accountID, deviceID), presenceTTL).Err(); err != nil {
		return fmt.Errorf("refresh presence: %w", err)
	}
	return nil
}
