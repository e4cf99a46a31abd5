package store

import "errors"

var (
	// ErrNotFound is returned when a node doesn't exist.
	ErrNotFound = errors.New("arbor: node not found")

	// ErrAlreadyExists is returned when inserting a node with an existing id.
	ErrAlreadyExists = errors.New("arbor: node already exists")

	// ErrSlugTaken is returned when a write would violate the case-insensitive
	// slug uniqueness constraint within a sibling scope.
	ErrSlugTaken = errors.New("arbor: slug already in use within its sibling scope")

	// ErrTransactionConflict is returned when a transaction loses a
	// serialization conflict with a concurrent transaction. Callers may retry
	// the whole operation with backoff.
	ErrTransactionConflict = errors.New("arbor: transaction conflict, retry the operation")

	// ErrTransactionTooLarge is returned when a transaction stages more items
	// than the backend can commit atomically.
	ErrTransactionTooLarge = errors.New("arbor: transaction exceeds the store's item limit")
)
