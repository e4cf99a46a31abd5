package tree

import (
	"errors"
	"fmt"

	"github.com/verdantio/arbor/store"
)

var (
	// ErrNotFound is returned when a node doesn't exist.
	ErrNotFound = store.ErrNotFound

	// ErrParentNotFound is returned when a referenced parent node doesn't
	// exist or belongs to a different website.
	ErrParentNotFound = errors.New("arbor: parent node not found")

	// ErrCircularReference is returned when a move would make a node its own
	// ancestor. The tree is left untouched.
	ErrCircularReference = errors.New("arbor: move would create a circular reference")

	// ErrMaxDepthExceeded is returned when an ancestor walk exceeds the hard
	// depth bound, which indicates pre-existing corruption. Run RepairTree.
	ErrMaxDepthExceeded = errors.New("arbor: ancestor chain exceeds maximum tree depth")

	// ErrSlugExhausted is returned when no unique slug was found within the
	// configured attempt budget.
	ErrSlugExhausted = errors.New("arbor: no unique slug found within attempt budget")

	// ErrTransactionConflict is the store's retryable serialization failure,
	// re-exported for callers that only import this package.
	ErrTransactionConflict = store.ErrTransactionConflict
)

// ValidationError reports malformed input. It is detected before any write.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("arbor: invalid %s: %s", e.Field, e.Reason)
}

// ConflictError reports a slug uniqueness violation. Suggestion carries a
// free alternative within the same sibling scope when one was found.
type ConflictError struct {
	Slug       string
	WebsiteID  string
	ParentID   string
	Suggestion string
}

func (e *ConflictError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("arbor: slug %q already in use (try %q)", e.Slug, e.Suggestion)
	}
	return fmt.Sprintf("arbor: slug %q already in use", e.Slug)
}
