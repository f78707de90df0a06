// Package cache implements the non-authoritative Redis account cache: a
// number-to-identifier map entry and an identifier-to-serialized-account
// entity entry. Entries carry no TTL; coherence relies on the account manager
// deleting them before every durable write.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/relaymesh/server/internal/model"
)

const (
	mapKeyPrefix    = "accountmap::"
	entityKeyPrefix = "account::"
)

// AccountCache wraps a Redis client with the two account mappings.
type AccountCache struct {
	rdb redis.UniversalClient
}

// NewAccountCache creates a new AccountCache instance.
func NewAccountCache(rdb redis.UniversalClient) *AccountCache {
	return &AccountCache{rdb: rdb}
}

func mapKey(number string) string {
	return mapKeyPrefix + number
}

func entityKey(id uuid.UUID) string {
	return entityKeyPrefix + id.String()
}

// GetByNumber resolves number -> id -> account. Returns (nil, nil) on a miss;
// any error is a transient cache failure the caller should treat as a miss.
func (c *AccountCache) GetByNumber(ctx context.Context, number string) (*model.Account, error) {
	idStr, err := c.rdb.Get(ctx, mapKey(number)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache get %s: %w", mapKey(number), err)
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("cache map entry corrupt for %s: %w", number, err)
	}
	return c.GetByID(ctx, id)
}

// GetByID returns the cached account snapshot, or (nil, nil) on a miss.
func (c *AccountCache) GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	data, err := c.rdb.Get(ctx, entityKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache get %s: %w", entityKey(id), err)
	}

	var account model.Account
	if err := json.Unmarshal([]byte(data), &account); err != nil {
		return nil, fmt.Errorf("cache entity corrupt for %s: %w", id, err)
	}
	// The entity key is authoritative for the identifier.
	account.ID = id
	return &account, nil
}

// Set writes both mappings for the account.
func (c *AccountCache) Set(ctx context.Context, account *model.Account) error {
	data, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("marshal account: %w", err)
	}

	pipe := c.rdb.Pipeline()
	pipe.Set(ctx, mapKey(account.Number), account.ID.String(), 0)
	pipe.Set(ctx, entityKey(account.ID), data, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache set for %s: %w", account.ID, err)
	}
	return nil
}

// Delete removes both mappings for the account.
func (c *AccountCache) Delete(ctx context.Context, account *model.Account) error {
	if err := c.rdb.Del(ctx, mapKey(account.Number), entityKey(account.ID)).Err(); err != nil {
		return fmt.Errorf("cache delete for %s: %w", account.ID, err)
	}
	return nil
}
