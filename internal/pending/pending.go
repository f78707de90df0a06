// Package pending stores not-yet-verified registration codes per phone
// number in Redis.
package pending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "pending::"
	// codes are short-lived; an unverified registration starts over
	codeTTL = 10 * time.Minute
)

// VerificationCode is one outstanding registration code.
type VerificationCode struct {
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"created_at"`
}

// Store holds pending registration codes.
type Store struct {
	rdb redis.UniversalClient
}

// NewStore creates a new pending-registration store.
func NewStore(rdb redis.UniversalClient) *Store {
	return &Store{rdb: rdb}
}

// Put stores the code for the number, replacing any previous code.
func (s *Store) Put(ctx context.Context, number, code string) error {
	data, err := json.Marshal(VerificationCode{Code: code, CreatedAt: time.Now()})
	if err != nil {
		return fmt.Errorf("marshal verification code: %w", err)
	}
	if err := s.rdb.Set(ctx, keyPrefix+number, data, codeTTL).Err(); err != nil {
		return fmt.Errorf("store verification code: %w", err)
	}
	return nil
}

// Get returns the outstanding code for the number, or nil when none exists.
func (s *Store) Get(ctx context.Context, number string) (*VerificationCode, error) {
	data, err := s.rdb.Get(ctx, keyPrefix+number).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("load verification code: %w", err)
	}

	var code VerificationCode
	if err := json.Unmarshal([]byte(data), &code); err != nil {
		return nil, fmt.Errorf("decode verification code: %w", err)
	}
	return &code, nil
}

// Remove deletes the pending code for the number.
func (s *Store) Remove(ctx context.Context, number string) error {
	if err := s.rdb.Del(ctx, keyPrefix+number).Err(); err != nil {
		return fmt.Errorf("remove verification code: %w", err)
	}
	return nil
}
