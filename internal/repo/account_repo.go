package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/relaymesh/server/internal/model"
)

// AccountRepo defines the durable account store. All writes are conditional:
// Update and ChangeNumber fail with ErrVersionConflict when the stored version
// does not match the snapshot's version, and Create takes over an existing row
// that already owns the number instead of failing.
type AccountRepo interface {
	// Create persists a new account. If a live account already owns the
	// number, that row is updated in place with the new account's data and
	// the snapshot's ID and Version are reassigned to the stored row's.
	// Returns true when a fresh row was inserted.
	Create(ctx context.Context, account *model.Account) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error)
	GetByNumber(ctx context.Context, number string) (*model.Account, error)
	// Update persists the snapshot keyed on its Version and bumps Version on
	// success.
	Update(ctx context.Context, account *model.Account) error
	// ChangeNumber is Update with a number change; the snapshot's Number is
	// set to newNumber on success.
	ChangeNumber(ctx context.Context, account *model.Account, newNumber string) error
	DeleteByID(ctx context.Context, id uuid.UUID) error
}

type accountRepo struct {
	db *sql.DB
}

// NewAccountRepo creates a new AccountRepo instance backed by Postgres.
func NewAccountRepo(db *sql.DB) AccountRepo {
	return &accountRepo{db: db}
}

func (r *accountRepo) Create(ctx context.Context, account *model.Account) (bool, error) {
	data, err := json.Marshal(account)
	if err != nil {
		return false, fmt.Errorf("marshal account: %w", err)
	}

	query := `
		INSERT INTO accounts (id, number, data, version)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (number) DO UPDATE
		SET data = EXCLUDED.data, version = accounts.version + 1
		RETURNING id, version, created_at, (xmax = 0) AS inserted
	`

	var (
		idStr     string
		version   int64
		createdAt time.Time
		inserted  bool
	)
	err = r.db.QueryRowContext(ctx, query, account.ID, account.Number, data).Scan(
		&idStr, &version, &createdAt, &inserted,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create account: %w", err)
	}

	storedID, err := uuid.Parse(idStr)
	if err != nil {
		return false, fmt.Errorf("failed to parse account ID: %w", err)
	}

	// On takeover the stored row keeps its identifier; the caller's snapshot
	// is reassigned so it refers to the row that now holds its data.
	account.ID = storedID
	account.Version = version
	account.CreatedAt = createdAt
	return inserted, nil
}

func (r *accountRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	query := `
		SELECT id, number, data, version, created_at
		FROM accounts
		WHERE id = $1
	`
	return r.scanAccount(r.db.QueryRowContext(ctx, query, id))
}

func (r *accountRepo) GetByNumber(ctx context.Context, number string) (*model.Account, error) {
	query := `
		SELECT id, number, data, version, created_at
		FROM accounts
		WHERE number = $1
	`
	return r.scanAccount(r.db.QueryRowContext(ctx, query, number))
}

func (r *accountRepo) scanAccount(row *sql.Row) (*model.Account, error) {
	var (
		idStr     string
		number    string
		data      []byte
		version   int64
		createdAt time.Time
	)
	if err := row.Scan(&idStr, &number, &data, &version, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query account: %w", err)
	}

	var account model.Account
	if err := json.Unmarshal(data, &account); err != nil {
		return nil, fmt.Errorf("failed to decode account data: %w", err)
	}

	// Column values are authoritative; the serialized blob may predate a
	// takeover or a number change.
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse account ID: %w", err)
	}
	account.ID = id
	account.Number = number
	account.Version = version
	account.CreatedAt = createdAt
	return &account, nil
}

func (r *accountRepo) Update(ctx context.Context, account *model.Account) error {
	return r.conditionalUpdate(ctx, account, account.Number)
}

func (r *accountRepo) ChangeNumber(ctx context.Context, account *model.Account, newNumber string) error {
	if err := r.conditionalUpdate(ctx, account, newNumber); err != nil {
		return err
	}
	account.Number = newNumber
	return nil
}

func (r *accountRepo) conditionalUpdate(ctx context.Context, account *model.Account, number string) error {
	data, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("marshal account: %w", err)
	}

	query := `
		UPDATE accounts
		SET number = $3, data = $4, version = version + 1
		WHERE id = $1 AND version = $2
		RETURNING version
	`

	var version int64
	err = r.db.QueryRowContext(ctx, query, account.ID, account.Version, number, data).Scan(&version)
	if err == nil {
		account.Version = version
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to update account: %w", err)
	}

	// No row matched: either the account is gone or the version is stale.
	var exists bool
	checkErr := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, account.ID,
	).Scan(&exists)
	if checkErr != nil {
		return fmt.Errorf("failed to check account existence: %w", checkErr)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrVersionConflict
}

func (r *accountRepo) DeleteByID(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return nil
}
