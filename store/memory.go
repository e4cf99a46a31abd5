package store

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store. Transactions are serialized under a
// single mutex, which trivially satisfies serializable isolation. It backs
// the tree engine's unit tests and is usable as an embedded store for small
// single-process deployments.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]*Record
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]*Record)}
}

// Get returns the node with the given id, or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// ListChildren returns the (websiteID, parentID) sibling scope ordered by
// position then id.
func (s *MemoryStore) ListChildren(ctx context.Context, websiteID, parentID string) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Record
	for _, rec := range s.rows {
		if rec.WebsiteID == websiteID && rec.ParentID == parentID {
			out = append(out, rec.Clone())
		}
	}
	sortSiblings(out)
	return out, nil
}

// ListWebsite returns every node of a website ordered by full path.
func (s *MemoryStore) ListWebsite(ctx context.Context, websiteID string) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Record
	for _, rec := range s.rows {
		if rec.WebsiteID == websiteID {
			out = append(out, rec.Clone())
		}
	}
	sortByPath(out)
	return out, nil
}

// CountWebsite returns the number of nodes of a website.
func (s *MemoryStore) CountWebsite(ctx context.Context, websiteID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, rec := range s.rows {
		if rec.WebsiteID == websiteID {
			n++
		}
	}
	return n, nil
}

// WithTransaction runs fn while holding the store mutex. Writes are staged
// in an overlay and applied only if fn returns nil.
func (s *MemoryStore) WithTransaction(ctx context.Context, fn func(Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTxn{
		base:    s.rows,
		staged:  make(map[string]*Record),
		deleted: make(map[string]struct{}),
	}
	if err := fn(tx); err != nil {
		return err
	}

	for id := range tx.deleted {
		delete(s.rows, id)
	}
	for id, rec := range tx.staged {
		s.rows[id] = rec
	}
	return nil
}

// memTxn overlays staged writes on the committed rows. The store mutex is
// held for the transaction's whole lifetime.
type memTxn struct {
	base    map[string]*Record
	staged  map[string]*Record
	deleted map[string]struct{}
}

// visible returns the row as the transaction currently sees it.
func (t *memTxn) visible(id string) (*Record, bool) {
	if _, ok := t.deleted[id]; ok {
		return nil, false
	}
	if rec, ok := t.staged[id]; ok {
		return rec, true
	}
	rec, ok := t.base[id]
	return rec, ok
}

func (t *memTxn) Get(id string) (*Record, error) {
	rec, ok := t.visible(id)
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

func (t *memTxn) ListChildren(websiteID, parentID string) ([]*Record, error) {
	var out []*Record
	for id := range t.allIDs() {
		rec, ok := t.visible(id)
		if ok && rec.WebsiteID == websiteID && rec.ParentID == parentID {
			out = append(out, rec.Clone())
		}
	}
	sortSiblings(out)
	return out, nil
}

func (t *memTxn) ListWebsite(websiteID string) ([]*Record, error) {
	var out []*Record
	for id := range t.allIDs() {
		rec, ok := t.visible(id)
		if ok && rec.WebsiteID == websiteID {
			out = append(out, rec.Clone())
		}
	}
	sortByPath(out)
	return out, nil
}

func (t *memTxn) allIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(t.base)+len(t.staged))
	for id := range t.base {
		ids[id] = struct{}{}
	}
	for id := range t.staged {
		ids[id] = struct{}{}
	}
	return ids
}

// slugTaken reports whether another visible row in rec's sibling scope
// already uses rec's slug, compared case-insensitively.
func (t *memTxn) slugTaken(rec *Record) bool {
	slug := strings.ToLower(rec.Slug)
	for id := range t.allIDs() {
		other, ok := t.visible(id)
		if !ok || other.ID == rec.ID {
			continue
		}
		if other.WebsiteID == rec.WebsiteID && other.ParentID == rec.ParentID &&
			strings.ToLower(other.Slug) == slug {
			return true
		}
	}
	return false
}

func (t *memTxn) Insert(rec *Record) error {
	if _, ok := t.visible(rec.ID); ok {
		return ErrAlreadyExists
	}
	if t.slugTaken(rec) {
		return ErrSlugTaken
	}
	c := rec.Clone()
	c.Version = 1
	delete(t.deleted, rec.ID)
	t.staged[rec.ID] = c
	return nil
}

func (t *memTxn) Update(rec *Record) error {
	cur, ok := t.visible(rec.ID)
	if !ok {
		return ErrNotFound
	}
	if t.slugTaken(rec) {
		return ErrSlugTaken
	}
	c := rec.Clone()
	c.Version = cur.Version
	if _, restaged := t.staged[rec.ID]; !restaged {
		c.Version = cur.Version + 1
	}
	t.staged[rec.ID] = c
	return nil
}

func (t *memTxn) Delete(id string) error {
	if _, ok := t.visible(id); !ok {
		return ErrNotFound
	}
	delete(t.staged, id)
	t.deleted[id] = struct{}{}
	return nil
}
