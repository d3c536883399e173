package state

import "errors"

var (
	// ErrConflict signals that another operation committed a write to an
	// entity this transaction read. The caller retries against fresh state.
	ErrConflict = errors.New("state: optimistic concurrency conflict")
	// ErrReadOnly is returned when a write is attempted inside View.
	ErrReadOnly = errors.New("state: write inside read-only transaction")
)
