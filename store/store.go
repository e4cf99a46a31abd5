package store

import (
	"context"
	"sort"
	"time"
)

// Record is the persisted row shape for a single site-structure node.
// The derived fields FullPath and PathDepth are computed by the tree engine;
// the store treats them as opaque attributes.
type Record struct {
	ID            string
	WebsiteID     string
	ParentID      string // "" = root-level node
	Slug          string
	FullPath      string
	PathDepth     int
	Position      int
	Weight        int
	Title         string
	ContentItemID string // "" = no linked content item
	Version       int64  // optimistic lock version, managed by the store
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Clone returns a shallow copy, so callers can mutate without aliasing
// store-owned state.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// Reader provides non-transactional reads over committed state. Reads may
// observe a slightly stale but internally consistent snapshot.
type Reader interface {
	// Get returns the node with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Record, error)

	// ListChildren returns the nodes in the (websiteID, parentID) sibling
	// scope, ordered by position then id. An empty parentID selects
	// root-level nodes.
	ListChildren(ctx context.Context, websiteID, parentID string) ([]*Record, error)

	// ListWebsite returns every node of a website, ordered by full path.
	ListWebsite(ctx context.Context, websiteID string) ([]*Record, error)

	// CountWebsite returns the number of nodes of a website.
	CountWebsite(ctx context.Context, websiteID string) (int, error)
}

// Txn is the view inside a single serializable transaction. Reads observe
// the transaction's own uncommitted writes. Txn methods use the context
// passed to WithTransaction.
type Txn interface {
	Get(id string) (*Record, error)
	ListChildren(websiteID, parentID string) ([]*Record, error)
	ListWebsite(websiteID string) ([]*Record, error)

	// Insert stages a new row. Inserting an existing id fails with
	// ErrAlreadyExists.
	Insert(rec *Record) error

	// Update stages a full-row replacement. Updating a missing id fails with
	// ErrNotFound.
	Update(rec *Record) error

	// Delete stages a row removal. Deleting a missing id fails with
	// ErrNotFound.
	Delete(id string) error
}

// Store combines snapshot reads with serializable transactions.
type Store interface {
	Reader

	// WithTransaction runs fn inside one serializable transaction. If fn
	// returns an error nothing is written and the error is returned
	// unchanged. Commit-time serialization failures surface as
	// ErrTransactionConflict.
	WithTransaction(ctx context.Context, fn func(Txn) error) error
}

// sortSiblings orders a sibling scope by position, breaking ties by id.
func sortSiblings(recs []*Record) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Position != recs[j].Position {
			return recs[i].Position < recs[j].Position
		}
		return recs[i].ID < recs[j].ID
	})
}

// sortByPath orders website rows by full path, breaking ties by id.
func sortByPath(recs []*Record) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].FullPath != recs[j].FullPath {
			return recs[i].FullPath < recs[j].FullPath
		}
		return recs[i].ID < recs[j].ID
	})
}
