package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// UsernameRepo stores the optional unique username per account.
type UsernameRepo interface {
	// Set assigns the username to the account, replacing the account's
	// previous username. Returns ErrUsernameTaken when another account
	// already holds it.
	Set(ctx context.Context, accountID uuid.UUID, username string) error
	Lookup(ctx context.Context, username string) (*uuid.UUID, error)
	Delete(ctx context.Context, accountID uuid.UUID) error
}

type usernameRepo struct {
	db *sql.DB
}

// NewUsernameRepo creates a new UsernameRepo instance backed by Postgres.
func NewUsernameRepo(db *sql.DB) UsernameRepo {
	return &usernameRepo{db: db}
}

func (r *usernameRepo) Set(ctx context.Context, accountID uuid.UUID, username string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO usernames (account_id, username)
		VALUES ($1, $2)
		ON CONFLICT (account_id) DO UPDATE SET username = EXCLUDED.username
	`, accountID, username)
	if err != nil {
		var pqErr *pq.Error
		// unique_violation on the username column means someone else owns it
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrUsernameTaken
		}
		return fmt.Errorf("failed to set username: %w", err)
	}
	return nil
}

func (r *usernameRepo) Lookup(ctx context.Context, username string) (*uuid.UUID, error) {
	var idStr string
	err := r.db.QueryRowContext(ctx,
		`SELECT account_id FROM usernames WHERE username = $1`, username,
	).Scan(&idStr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up username: %w", err)
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse account ID: %w", err)
	}
	return &id, nil
}

func (r *usernameRepo) Delete(ctx context.Context, accountID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM usernames WHERE account_id = $1`, accountID)
	if err != nil {
		return fmt.Errorf("failed to delete username: %w", err)
	}
	return nil
}
