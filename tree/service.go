package tree

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/verdantio/arbor/store"
)

// ContentItemLinkage is the external collaborator owning content records.
// UnlinkContentItem is invoked for every content-bearing node of a cascade
// delete, inside the owning transaction; its failure aborts the delete.
type ContentItemLinkage interface {
	UnlinkContentItem(ctx context.Context, nodeID string) error
}

// CacheInvalidator receives a notification after every committed mutation of
// a website's tree. The core holds no cache itself; an external cache layer
// can hook in here.
type CacheInvalidator interface {
	InvalidateWebsite(websiteID string)
}

// Service orchestrates all operations on website page hierarchies. Every
// mutating method runs in exactly one serializable transaction; bulk methods
// use one transaction for the whole batch. It is safe for concurrent use.
type Service struct {
	store       store.Store
	slugs       *SlugValidator
	content     ContentItemLinkage
	invalidator CacheInvalidator

	now   func() time.Time
	newID func() string
}

// NewService creates a Service over the given store with the given slug
// rules.
func NewService(st store.Store, config SlugConfig) *Service {
	return &Service{
		store: st,
		slugs: NewSlugValidator(st, config),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// SetContentLinkage sets the content collaborator used by cascade deletes.
func (s *Service) SetContentLinkage(linkage ContentItemLinkage) {
	s.content = linkage
}

// SetCacheInvalidator sets the per-website invalidation hook.
func (s *Service) SetCacheInvalidator(inv CacheInvalidator) {
	s.invalidator = inv
}

// Slugs returns the slug validator, for callers that want to pre-validate
// input (for example before bulk operations).
func (s *Service) Slugs() *SlugValidator {
	return s.slugs
}

func (s *Service) invalidate(websiteID string) {
	if s.invalidator != nil {
		s.invalidator.InvalidateWebsite(websiteID)
	}
}

// nextPosition returns one past the highest position in the sibling group.
// siblings must be position-ordered, as the store guarantees.
func nextPosition(siblings []*store.Record) int {
	if len(siblings) == 0 {
		return 1
	}
	return siblings[len(siblings)-1].Position + 1
}

// Create inserts a new node. An empty Slug is generated from Title; an
// explicit slug that collides fails with a *ConflictError carrying a
// suggestion. Position defaults to the end of the sibling group.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Node, error) {
	var rec *store.Record
	err := s.store.WithTransaction(ctx, func(tx store.Txn) error {
		var err error
		rec, err = s.createInTxn(tx, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(in.WebsiteID)
	return nodeFromRecord(rec), nil
}

// createInTxn validates and stages one node insert. The slug uniqueness
// check and the insert share the transaction, so there is no check-then-act
// race; the store's slug constraint backs it up at commit.
func (s *Service) createInTxn(tx store.Txn, in CreateInput) (*store.Record, error) {
	if in.WebsiteID == "" {
		return nil, &ValidationError{Field: "websiteId", Reason: "must not be empty"}
	}
	if in.Title == "" {
		return nil, &ValidationError{Field: "title", Reason: "must not be empty"}
	}

	parentPath, parentDepth := "", 0
	if in.ParentID != "" {
		parent, err := tx.Get(in.ParentID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrParentNotFound
		}
		if err != nil {
			return nil, err
		}
		if parent.WebsiteID != in.WebsiteID {
			return nil, &ValidationError{Field: "parentId", Reason: "parent belongs to a different website"}
		}
		parentPath, parentDepth = parent.FullPath, parent.PathDepth
	}

	siblings, err := tx.ListChildren(in.WebsiteID, in.ParentID)
	if err != nil {
		return nil, err
	}
	taken := siblingSlugs(siblings, "")

	slug := in.Slug
	if slug == "" {
		base := Slugify(in.Title)
		if base == "" {
			return nil, &ValidationError{Field: "title", Reason: fmt.Sprintf("%q produces an empty slug", in.Title)}
		}
		slug, err = s.slugs.ensureUniqueAmong(base, taken)
		if err != nil {
			return nil, err
		}
	} else {
		if err := s.slugs.checkFormat(slug); err != nil {
			return nil, err
		}
		if _, exists := taken[strings.ToLower(slug)]; exists {
			return nil, s.conflict(slug, in.WebsiteID, in.ParentID, taken)
		}
	}

	position := nextPosition(siblings)
	if in.Position != nil {
		position = *in.Position
	}

	now := s.now()
	rec := &store.Record{
		ID:            s.newID(),
		WebsiteID:     in.WebsiteID,
		ParentID:      in.ParentID,
		Slug:          slug,
		FullPath:      ComputePath(parentPath, slug),
		PathDepth:     ComputeDepth(parentDepth),
		Position:      position,
		Weight:        in.Weight,
		Title:         in.Title,
		ContentItemID: in.ContentItemID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := tx.Insert(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// conflict builds a ConflictError with a best-effort free alternative.
func (s *Service) conflict(slug, websiteID, parentID string, taken map[string]struct{}) error {
	conflict := &ConflictError{Slug: slug, WebsiteID: websiteID, ParentID: parentID}
	if suggestion, err := s.slugs.ensureUniqueAmong(slug, taken); err == nil {
		conflict.Suggestion = suggestion
	}
	return conflict
}

// Update applies a partial update. A slug change re-validates uniqueness in
// the node's (unchanged) sibling scope and recalculates the paths of the
// node and all descendants through the same primitive MoveNode uses.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*Node, error) {
	var rec *store.Record
	err := s.store.WithTransaction(ctx, func(tx store.Txn) error {
		var err error
		rec, err = s.updateInTxn(tx, id, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(rec.WebsiteID)
	return nodeFromRecord(rec), nil
}

func (s *Service) updateInTxn(tx store.Txn, id string, in UpdateInput) (*store.Record, error) {
	rec, err := tx.Get(id)
	if err != nil {
		return nil, err
	}

	pathChanged := false
	if in.Slug != nil && *in.Slug != rec.Slug {
		newSlug := *in.Slug
		if err := s.slugs.checkFormat(newSlug); err != nil {
			return nil, err
		}
		siblings, err := tx.ListChildren(rec.WebsiteID, rec.ParentID)
		if err != nil {
			return nil, err
		}
		taken := siblingSlugs(siblings, rec.ID)
		if _, exists := taken[strings.ToLower(newSlug)]; exists {
			return nil, s.conflict(newSlug, rec.WebsiteID, rec.ParentID, taken)
		}

		parentPath := ""
		if rec.ParentID != "" {
			parent, err := tx.Get(rec.ParentID)
			if err != nil {
				return nil, err
			}
			parentPath = parent.FullPath
		}
		rec.Slug = newSlug
		rec.FullPath = ComputePath(parentPath, newSlug)
		pathChanged = true
	}
	if in.Title != nil {
		if *in.Title == "" {
			return nil, &ValidationError{Field: "title", Reason: "must not be empty"}
		}
		rec.Title = *in.Title
	}
	if in.Weight != nil {
		rec.Weight = *in.Weight
	}

	rec.UpdatedAt = s.now()
	if err := tx.Update(rec); err != nil {
		return nil, err
	}
	if pathChanged {
		if err := recalculateDescendantPaths(tx, rec, rec.UpdatedAt); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// Delete removes a node and its entire subtree in one transaction. Content
// items are unlinked through the ContentItemLinkage collaborator; any
// unlink failure aborts the whole delete.
func (s *Service) Delete(ctx context.Context, id string) error {
	var websiteID string
	err := s.store.WithTransaction(ctx, func(tx store.Txn) error {
		rec, err := tx.Get(id)
		if err != nil {
			return err
		}
		websiteID = rec.WebsiteID

		subtree, err := collectSubtree(tx, rec)
		if err != nil {
			return err
		}
		for _, node := range subtree {
			if node.ContentItemID != "" && s.content != nil {
				if err := s.content.UnlinkContentItem(ctx, node.ID); err != nil {
					return fmt.Errorf("unlink content item of node %s: %w", node.ID, err)
				}
			}
		}
		// Children before parents.
		for i := len(subtree) - 1; i >= 0; i-- {
			if err := tx.Delete(subtree[i].ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidate(websiteID)
	return nil
}

// MoveNode re-parents a node, placing it at the end of the new sibling
// group and recalculating FullPath/PathDepth for it and every descendant in
// ascending-depth order, all inside one transaction. A move that would make
// the node its own ancestor fails with ErrCircularReference and changes
// nothing.
func (s *Service) MoveNode(ctx context.Context, id, newParentID string) (*Node, error) {
	var rec *store.Record
	err := s.store.WithTransaction(ctx, func(tx store.Txn) error {
		var err error
		rec, err = tx.Get(id)
		if err != nil {
			return err
		}
		if newParentID == rec.ID {
			return ErrCircularReference
		}

		parentPath, parentDepth := "", 0
		if newParentID != "" {
			parent, err := tx.Get(newParentID)
			if errors.Is(err, store.ErrNotFound) {
				return ErrParentNotFound
			}
			if err != nil {
				return err
			}
			if parent.WebsiteID != rec.WebsiteID {
				return &ValidationError{Field: "parentId", Reason: "parent belongs to a different website"}
			}
			if err := s.checkNoCycle(tx, rec.ID, parent); err != nil {
				return err
			}
			parentPath, parentDepth = parent.FullPath, parent.PathDepth
		}

		siblings, err := tx.ListChildren(rec.WebsiteID, newParentID)
		if err != nil {
			return err
		}
		taken := siblingSlugs(siblings, rec.ID)
		if _, exists := taken[strings.ToLower(rec.Slug)]; exists {
			return s.conflict(rec.Slug, rec.WebsiteID, newParentID, taken)
		}

		rec.ParentID = newParentID
		rec.FullPath = ComputePath(parentPath, rec.Slug)
		rec.PathDepth = ComputeDepth(parentDepth)
		rec.Position = nextPosition(siblings)
		rec.UpdatedAt = s.now()
		if err := tx.Update(rec); err != nil {
			return err
		}
		return recalculateDescendantPaths(tx, rec, rec.UpdatedAt)
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(rec.WebsiteID)
	return nodeFromRecord(rec), nil
}

// checkNoCycle walks the ancestor chain of the move target iteratively with
// a hard depth bound, so pre-existing corruption cannot loop forever.
func (s *Service) checkNoCycle(tx store.Txn, movingID string, newParent *store.Record) error {
	cur := newParent
	for depth := 0; ; depth++ {
		if depth > maxTreeDepth {
			return ErrMaxDepthExceeded
		}
		if cur.ID == movingID {
			return ErrCircularReference
		}
		if cur.ParentID == "" {
			return nil
		}
		next, err := tx.Get(cur.ParentID)
		if errors.Is(err, store.ErrNotFound) {
			return nil // orphaned ancestry ends the chain; RepairTree's job
		}
		if err != nil {
			return err
		}
		cur = next
	}
}

// BulkCreate inserts a batch of nodes in one transaction. Any invalid item
// rolls back the entire batch; there are no partial inserts. When two items
// request the same explicit position, the later item wins that position and
// no reindexing happens.
//
// Batch size is bounded by the store's transaction item limit. On the
// DynamoDB store each created node costs two transaction items (its row and
// its slug-constraint claim), capping a batch at 50 nodes; larger batches
// fail with store.ErrTransactionTooLarge.
func (s *Service) BulkCreate(ctx context.Context, items []CreateInput) ([]*Node, error) {
	var nodes []*Node
	err := s.store.WithTransaction(ctx, func(tx store.Txn) error {
		nodes = nodes[:0]
		for i, in := range items {
			rec, err := s.createInTxn(tx, in)
			if err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
			nodes = append(nodes, nodeFromRecord(rec))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, websiteID := range distinctWebsites(nodes) {
		s.invalidate(websiteID)
	}
	return nodes, nil
}

// BulkUpdate applies a batch of updates in one transaction with the same
// all-or-nothing semantics as BulkCreate.
func (s *Service) BulkUpdate(ctx context.Context, items []BulkUpdateItem) ([]*Node, error) {
	var nodes []*Node
	err := s.store.WithTransaction(ctx, func(tx store.Txn) error {
		nodes = nodes[:0]
		for i, item := range items {
			rec, err := s.updateInTxn(tx, item.ID, item.Update)
			if err != nil {
				return fmt.Errorf("item %d (%s): %w", i, item.ID, err)
			}
			nodes = append(nodes, nodeFromRecord(rec))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, websiteID := range distinctWebsites(nodes) {
		s.invalidate(websiteID)
	}
	return nodes, nil
}

func distinctWebsites(nodes []*Node) []string {
	seen := make(map[string]struct{}, 1)
	var out []string
	for _, n := range nodes {
		if _, ok := seen[n.WebsiteID]; !ok {
			seen[n.WebsiteID] = struct{}{}
			out = append(out, n.WebsiteID)
		}
	}
	return out
}

// ReorderSiblings atomically rewrites positions within one sibling group.
// Every item must belong to the group, and the group's positions must be
// duplicate-free after applying the items.
func (s *Service) ReorderSiblings(ctx context.Context, websiteID, parentID string, items []ReorderItem) error {
	err := s.store.WithTransaction(ctx, func(tx store.Txn) error {
		siblings, err := tx.ListChildren(websiteID, parentID)
		if err != nil {
			return err
		}
		byID := make(map[string]*store.Record, len(siblings))
		for _, rec := range siblings {
			byID[rec.ID] = rec
		}

		touched := make(map[string]struct{}, len(items))
		for _, item := range items {
			rec, ok := byID[item.ID]
			if !ok {
				return fmt.Errorf("node %s is not in the sibling group: %w", item.ID, ErrNotFound)
			}
			rec.Position = item.Position
			touched[item.ID] = struct{}{}
		}

		seen := make(map[int]string, len(siblings))
		for _, rec := range siblings {
			if otherID, dup := seen[rec.Position]; dup {
				return &ValidationError{
					Field:  "position",
					Reason: fmt.Sprintf("position %d assigned to both %s and %s", rec.Position, otherID, rec.ID),
				}
			}
			seen[rec.Position] = rec.ID
		}

		now := s.now()
		for _, rec := range siblings {
			if _, ok := touched[rec.ID]; !ok {
				continue
			}
			rec.UpdatedAt = now
			if err := tx.Update(rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidate(websiteID)
	return nil
}
