package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// MessageRepo stores pending message envelopes per recipient account.
type MessageRepo interface {
	Insert(ctx context.Context, recipientID uuid.UUID, deviceID int, payload []byte) error
	CountPending(ctx context.Context, recipientID uuid.UUID) (int, error)
	// Clear removes every pending envelope addressed to the account.
	Clear(ctx context.Context, recipientID uuid.UUID) error
}

type messageRepo struct {
	db *sql.DB
}

// NewMessageRepo creates a new MessageRepo instance backed by Postgres.
func NewMessageRepo(db *sql.DB) MessageRepo {
	return &messageRepo{db: db}
}

func (r *messageRepo) Insert(ctx context.Context, recipientID uuid.UUID, deviceID int, payload []byte) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (recipient_id, device_id, payload)
		VALUES ($1, $2, $3)
	`, recipientID, deviceID, payload)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (r *messageRepo) CountPending(ctx context.Context, recipientID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE recipient_id = $1`, recipientID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

func (r *messageRepo) Clear(ctx context.Context, recipientID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE recipient_id = $1`, recipientID)
	if err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}
	return nil
}
