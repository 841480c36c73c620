package storage

import (
	"fmt"

	"stashdb/value"
)

// Entry pairs a key with its current value. The store owns exactly one Entry
// per key.
type Entry struct {
	Key   string
	Value value.Value
}

// -------------------------------------------------------------------------
// Typed errors. The CLI maps each kind to a one-line message.
// -------------------------------------------------------------------------

// DuplicateKeyError is returned when creating a key that already exists.
type DuplicateKeyError struct{ Key string }

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("key %q already exists", e.Key)
}

// KeyNotFoundError is returned when referencing a key that does not exist.
type KeyNotFoundError struct{ Key string }

func (e *KeyNotFoundError) Error() string {
	return fmt.Sprintf("key %q not found", e.Key)
}

// ValidationError is returned when a create or update carries a malformed
// key or value.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid value: %v", e.Err)
	}
	return fmt.Sprintf("invalid input: %s", e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// TransactionError is returned for begin-while-open, commit/rollback while
// idle, and commit-time conflicts.
type TransactionError struct{ Reason string }

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction error: %s", e.Reason)
}

// StorageCorruptionError is returned when the backing file exists but cannot
// be parsed. It is fatal: the engine refuses to start rather than silently
// dropping data.
type StorageCorruptionError struct {
	Path string
	Err  error
}

func (e *StorageCorruptionError) Error() string {
	return fmt.Sprintf("backing file %s is corrupted: %v", e.Path, e.Err)
}

func (e *StorageCorruptionError) Unwrap() error { return e.Err }
