package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ReclamationTTL is how long a deleted account's number-to-identifier mapping
// is retained. A re-registration of the number within this window reclaims the
// old identifier.
const ReclamationTTL = 30 * 24 * time.Hour

// DeletedAccountRepo stores one reclamation record per phone number, mapping
// it to the identifier that most recently owned it before deletion.
type DeletedAccountRepo interface {
	// Put records that the given identifier owned the number; overwrites any
	// previous record for that number and resets the retention window.
	Put(ctx context.Context, id uuid.UUID, number string) error
	// FindID returns the identifier that last owned the number, or nil when
	// no unexpired record exists.
	FindID(ctx context.Context, number string) (*uuid.UUID, error)
	Remove(ctx context.Context, number string) error
}

type deletedAccountRepo struct {
	db *sql.DB
}

// NewDeletedAccountRepo creates a new DeletedAccountRepo instance backed by
// Postgres. Expiry is lazy: expired rows are ignored on read and overwritten
// on the next Put for the same number.
func NewDeletedAccountRepo(db *sql.DB) DeletedAccountRepo {
	return &deletedAccountRepo{db: db}
}

func (r *deletedAccountRepo) Put(ctx context.Context, id uuid.UUID, number string) error {
	query := `
		INSERT INTO deleted_accounts (number, account_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (number) DO UPDATE
		SET account_id = EXCLUDED.account_id, expires_at = EXCLUDED.expires_at
	`
	_, err := r.db.ExecContext(ctx, query, number, id, time.Now().Add(ReclamationTTL))
	if err != nil {
		return fmt.Errorf("failed to record deleted account: %w", err)
	}
	return nil
}

func (r *deletedAccountRepo) FindID(ctx context.Context, number string) (*uuid.UUID, error) {
	query := `
		SELECT account_id
		FROM deleted_accounts
		WHERE number = $1 AND expires_at > now()
	`
	var idStr string
	err := r.db.QueryRowContext(ctx, query, number).Scan(&idStr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query deleted account: %w", err)
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse deleted account ID: %w", err)
	}
	return &id, nil
}

func (r *deletedAccountRepo) Remove(ctx context.Context, number string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM deleted_accounts WHERE number = $1`, number)
	if err != nil {
		return fmt.Errorf("failed to remove deleted account record: %w", err)
	}
	return nil
}
