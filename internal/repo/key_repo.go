package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// PreKey is a one-time pre-key uploaded by a device.
type PreKey struct {
	KeyID     int64
	PublicKey string
}

// KeyRepo stores one-time pre-keys per account and device.
type KeyRepo interface {
	// Store replaces the device's pre-key supply with the given keys.
	Store(ctx context.Context, accountID uuid.UUID, deviceID int, keys []PreKey) error
	// Take removes and returns one pre-key for the device, or nil when none
	// remain.
	Take(ctx context.Context, accountID uuid.UUID, deviceID int) (*PreKey, error)
	Count(ctx context.Context, accountID uuid.UUID, deviceID int) (int, error)
	// DeleteAll removes every pre-key stored under the account.
	DeleteAll(ctx context.Context, accountID uuid.UUID) error
}

type keyRepo struct {
	db *sql.DB
}

// NewKeyRepo creates a new KeyRepo instance backed by Postgres.
func NewKeyRepo(db *sql.DB) KeyRepo {
	return &keyRepo{db: db}
}

func (r *keyRepo) Store(ctx context.Context, accountID uuid.UUID, deviceID int, keys []PreKey) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM prekeys WHERE account_id = $1 AND device_id = $2`, accountID, deviceID)
	if err != nil {
		return fmt.Errorf("failed to clear pre-keys: %w", err)
	}

	for _, key := range keys {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO prekeys (account_id, device_id, key_id, public_key)
			VALUES ($1, $2, $3, $4)
		`, accountID, deviceID, key.KeyID, key.PublicKey)
		if err != nil {
			return fmt.Errorf("failed to store pre-key: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *keyRepo) Take(ctx context.Context, accountID uuid.UUID, deviceID int) (*PreKey, error) {
	query := `
		DELETE FROM prekeys
		WHERE ctid = (
			SELECT ctid FROM prekeys
			WHERE account_id = $1 AND device_id = $2
			ORDER BY key_id
			LIMIT 1
		)
		RETURNING key_id, public_key
	`
	var key PreKey
	err := r.db.QueryRowContext(ctx, query, accountID, deviceID).Scan(&key.KeyID, &key.PublicKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to take pre-key: %w", err)
	}
	return &key, nil
}

func (r *keyRepo) Count(ctx context.Context, accountID uuid.UUID, deviceID int) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM prekeys WHERE account_id = $1 AND device_id = $2`,
		accountID, deviceID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pre-keys: %w", err)
	}
	return count, nil
}

func (r *keyRepo) DeleteAll(ctx context.Context, accountID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM prekeys WHERE account_id = $1`, accountID)
	if err != nil {
		return fmt.Errorf("failed to delete pre-keys: %w", err)
	}
	return nil
}
