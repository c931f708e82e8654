package repository

import "errors"

var (
	// ErrDuplicateTransaction means the native deposit transaction hash has
	// already been consumed by an existing mint request. Terminal per hash.
	ErrDuplicateTransaction = errors.New("transaction hash already used by a mint request")

	// ErrDuplicateBurnTransaction means the burn transaction hash has already
	// been consumed by an existing redeem request. Terminal per hash.
	ErrDuplicateBurnTransaction = errors.New("burn transaction hash already used by a redeem request")

	// ErrNotFound is returned for lookups of a record that does not exist.
	// Callers must treat this as an explicit absent result, never as a
	// generic storage failure.
	ErrNotFound = errors.New("record not found")
)
