package repository

import "errors"

// Sentinel kinds for persistence errors.
var (
	// ErrNotFound signals a missing ranking entry.
	ErrNotFound = errors.New("pokemon not found")

	// ErrConflict signals a concurrent write for the same owner was detected.
	// Callers retry with backoff.
	ErrConflict = errors.New("concurrent reconciliation conflict")

	// ErrStorage wraps backend failures that abort the current operation.
	ErrStorage = errors.New("storage unavailable")

	// ErrInvalidLimit signals a non-positive ranking query limit.
	ErrInvalidLimit = errors.New("invalid ranking limit")
)
