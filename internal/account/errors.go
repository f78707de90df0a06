package account

import "errors"

var (
	// ErrRetryLimitExceeded is returned when an update still hits version
	// conflicts after the maximum number of conditional-write attempts.
	ErrRetryLimitExceeded = errors.New("account update retry limit exceeded")

	// ErrNumberChangedViaUpdate flags a programming error: a mutator passed
	// to Update changed the account's number. Numbers change only through
	// ChangeNumber, which holds locks on both numbers.
	ErrNumberChangedViaUpdate = errors.New("account number must be changed via ChangeNumber")
)
