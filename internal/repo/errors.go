package repo

import "errors"

var (
	// ErrNotFound is returned when no row exists for the requested key.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict is returned by conditional account writes when the
	// stored version no longer matches the caller's snapshot. It is the only
	// store error the account manager's retry loop recovers from.
	ErrVersionConflict = errors.New("account version conflict")

	// ErrUsernameTaken is returned when a username is already reserved by
	// another account.
	ErrUsernameTaken = errors.New("username taken")
)
