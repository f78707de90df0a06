package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Profile is one versioned profile record for an account.
type Profile struct {
	Version string
	Name    string
	Avatar  string
}

// ProfileRepo stores versioned profiles per account.
type ProfileRepo interface {
	Set(ctx context.Context, accountID uuid.UUID, profile Profile) error
	Get(ctx context.Context, accountID uuid.UUID, version string) (*Profile, error)
	// DeleteAll removes every profile version stored under the account.
	DeleteAll(ctx context.Context, accountID uuid.UUID) error
}

type profileRepo struct {
	db *sql.DB
}

// NewProfileRepo creates a new ProfileRepo instance backed by Postgres.
func NewProfileRepo(db *sql.DB) ProfileRepo {
	return &profileRepo{db: db}
}

func (r *profileRepo) Set(ctx context.Context, accountID uuid.UUID, profile Profile) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO profiles (account_id, version, name, avatar)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_id, version) DO UPDATE
		SET name = EXCLUDED.name, avatar = EXCLUDED.avatar
	`, accountID, profile.Version, profile.Name, profile.Avatar)
	if err != nil {
		return fmt.Errorf("failed to set profile: %w", err)
	}
	return nil
}

func (r *profileRepo) Get(ctx context.Context, accountID uuid.UUID, version string) (*Profile, error) {
	var profile Profile
	err := r.db.QueryRowContext(ctx, `
		SELECT version, name, avatar
		FROM profiles
		WHERE account_id = $1 AND version = $2
	`, accountID, version).Scan(&profile.Version, &profile.Name, &profile.Avatar)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query profile: %w", err)
	}
	return &profile, nil
}

func (r *profileRepo) DeleteAll(ctx context.Context, accountID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM profiles WHERE account_id = $1`, accountID)
	if err != nil {
		return fmt.Errorf("failed to delete profiles: %w", err)
	}
	return nil
}
