package shared

import "errors"

// Error taxonomy for the ledger core. Domain packages wrap these sentinels
// so callers can classify failures with errors.Is without depending on the
// package that produced them.
var (
	// ErrValidation marks caller-fixable input problems.
	ErrValidation = errors.New("validation failed")
	// ErrState marks operations not permitted in the current lifecycle state.
	ErrState = errors.New("operation not permitted in current state")
	// ErrIntegrity marks detected data inconsistencies.
	ErrIntegrity = errors.New("data integrity violation")
	// ErrConflict marks a lost race for a lock or claim; retry or treat as applied.
	ErrConflict = errors.New("concurrency conflict")
	// ErrNotFound marks missing records.
	ErrNotFound = errors.New("record not found")
)
