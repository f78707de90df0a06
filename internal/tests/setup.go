package tests

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// TruncateAccountTables truncates all account-related tables for a clean test
// state.
func TruncateAccountTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, "TRUNCATE TABLE prekeys, messages, profiles, usernames, deleted_accounts, accounts RESTART IDENTITY CASCADE")
	if err != nil {
		return fmt.Errorf("truncate account tables: %w", err)
	}
	return nil
}

// FlushRedis clears the test Redis database. Point REDIS_URL at a dedicated
// database number; everything in it is discarded between tests.
func FlushRedis(ctx context.Context, rdb redis.UniversalClient) error {
	if err := rdb.FlushDB(ctx).Err(); err != nil {
		return fmt.Errorf("flush redis: %w", err)
	}
	return nil
}
