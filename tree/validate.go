package tree

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/verdantio/arbor/store"
)

// IntegrityKind classifies a structural inconsistency.
type IntegrityKind string

const (
	// IntegrityOrphan: the node's parent reference points at a nonexistent
	// node.
	IntegrityOrphan IntegrityKind = "orphan"

	// IntegrityCycle: the node is caught in a parent-reference cycle and is
	// unreachable from any root.
	IntegrityCycle IntegrityKind = "cycle"

	// IntegrityPathDrift: the node's FullPath disagrees with its parent's
	// path and its own slug.
	IntegrityPathDrift IntegrityKind = "path-drift"

	// IntegrityDepthDrift: the node's PathDepth disagrees with its parent's
	// depth.
	IntegrityDepthDrift IntegrityKind = "depth-drift"
)

// IntegrityError describes one structural inconsistency. These are reported
// inside a ValidationResult, never returned as Go errors.
type IntegrityError struct {
	NodeID string
	Kind   IntegrityKind
	Detail string
}

// ValidationResult is the outcome of a structural audit.
type ValidationResult struct {
	Valid  bool
	Errors []IntegrityError
}

// ValidateTree audits a website for orphaned nodes and parent-reference
// cycles.
func (s *Service) ValidateTree(ctx context.Context, websiteID string) (*ValidationResult, error) {
	rows, err := s.store.ListWebsite(ctx, websiteID)
	if err != nil {
		return nil, err
	}

	byID := indexByID(rows)
	var errs []IntegrityError
	for _, rec := range rows {
		if rec.ParentID == "" {
			continue
		}
		if _, ok := byID[rec.ParentID]; !ok {
			errs = append(errs, IntegrityError{
				NodeID: rec.ID,
				Kind:   IntegrityOrphan,
				Detail: fmt.Sprintf("parent %s does not exist", rec.ParentID),
			})
		}
	}

	// Nodes whose parents all exist but that no root can reach are caught in
	// a cycle.
	orphaned := make(map[string]struct{}, len(errs))
	for _, e := range errs {
		orphaned[e.NodeID] = struct{}{}
	}
	for _, id := range unreachableIDs(rows) {
		if _, isOrphan := orphaned[id]; isOrphan {
			continue
		}
		errs = append(errs, IntegrityError{
			NodeID: id,
			Kind:   IntegrityCycle,
			Detail: "node is unreachable from any root",
		})
	}

	return &ValidationResult{Valid: len(errs) == 0, Errors: errs}, nil
}

// ValidatePaths audits a website for FullPath/PathDepth drift from the
// actual parent chain. Local consistency of every node against its parent
// implies global consistency once the tree is acyclic.
func (s *Service) ValidatePaths(ctx context.Context, websiteID string) (*ValidationResult, error) {
	rows, err := s.store.ListWebsite(ctx, websiteID)
	if err != nil {
		return nil, err
	}

	byID := indexByID(rows)
	var errs []IntegrityError
	for _, rec := range rows {
		parentPath, parentDepth := "", 0
		if rec.ParentID != "" {
			parent, ok := byID[rec.ParentID]
			if !ok {
				continue // reported by ValidateTree
			}
			parentPath, parentDepth = parent.FullPath, parent.PathDepth
		}

		if expected := ComputePath(parentPath, rec.Slug); rec.FullPath != expected {
			errs = append(errs, IntegrityError{
				NodeID: rec.ID,
				Kind:   IntegrityPathDrift,
				Detail: fmt.Sprintf("full path %q, expected %q", rec.FullPath, expected),
			})
		}
		if expected := ComputeDepth(parentDepth); rec.PathDepth != expected {
			errs = append(errs, IntegrityError{
				NodeID: rec.ID,
				Kind:   IntegrityDepthDrift,
				Detail: fmt.Sprintf("path depth %d, expected %d", rec.PathDepth, expected),
			})
		}
	}

	return &ValidationResult{Valid: len(errs) == 0, Errors: errs}, nil
}

// RepairTree fixes structural corruption in one transaction: orphans are
// promoted to root, cycles are broken by promoting one member, and every
// drifted FullPath/PathDepth is recomputed in ascending-depth order. It
// never deletes nodes or content.
func (s *Service) RepairTree(ctx context.Context, websiteID string) (*ValidationResult, error) {
	err := s.store.WithTransaction(ctx, func(tx store.Txn) error {
		rows, err := tx.ListWebsite(websiteID)
		if err != nil {
			return err
		}
		byID := indexByID(rows)
		changed := make(map[string]struct{})

		// Promotion must keep the root sibling scope conflict-free: a
		// promoted node whose slug is already taken at root level gets a
		// suffixed slug.
		rootTaken := make(map[string]struct{})
		for _, rec := range rows {
			if rec.ParentID == "" {
				rootTaken[strings.ToLower(rec.Slug)] = struct{}{}
			}
		}
		promote := func(rec *store.Record) error {
			rec.ParentID = ""
			if _, exists := rootTaken[strings.ToLower(rec.Slug)]; exists {
				slug, err := s.slugs.ensureUniqueAmong(rec.Slug, rootTaken)
				if err != nil {
					return err
				}
				rec.Slug = slug
			}
			rootTaken[strings.ToLower(rec.Slug)] = struct{}{}
			changed[rec.ID] = struct{}{}
			return nil
		}

		// Promote nodes whose parent doesn't exist.
		for _, rec := range rows {
			if rec.ParentID == "" {
				continue
			}
			if _, ok := byID[rec.ParentID]; !ok {
				if err := promote(rec); err != nil {
					return err
				}
			}
		}

		// Break cycles: as long as some node is unreachable from the roots,
		// promote the smallest unreachable id and retry. Each promotion
		// breaks at least one cycle, so this terminates.
		for {
			unreachable := unreachableIDs(rows)
			if len(unreachable) == 0 {
				break
			}
			if err := promote(byID[unreachable[0]]); err != nil {
				return err
			}
		}

		// Recompute derived fields top-down so every node derives from an
		// already-correct ancestor.
		byParent := indexByParent(rows)
		var queue []*store.Record
		for _, rec := range rows {
			if rec.ParentID == "" {
				if expected := ComputePath("", rec.Slug); rec.FullPath != expected || rec.PathDepth != 1 {
					rec.FullPath = expected
					rec.PathDepth = 1
					changed[rec.ID] = struct{}{}
				}
				queue = append(queue, rec)
			}
		}
		for len(queue) > 0 {
			parent := queue[0]
			queue = queue[1:]
			for _, child := range byParent[parent.ID] {
				expectedPath := ComputePath(parent.FullPath, child.Slug)
				expectedDepth := ComputeDepth(parent.PathDepth)
				if child.FullPath != expectedPath || child.PathDepth != expectedDepth {
					child.FullPath = expectedPath
					child.PathDepth = expectedDepth
					changed[child.ID] = struct{}{}
				}
				queue = append(queue, child)
			}
		}

		now := s.now()
		for _, rec := range rows {
			if _, ok := changed[rec.ID]; !ok {
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
		return nil, err
	}
	s.invalidate(websiteID)
	return &ValidationResult{Valid: true}, nil
}

func indexByID(rows []*store.Record) map[string]*store.Record {
	byID := make(map[string]*store.Record, len(rows))
	for _, rec := range rows {
		byID[rec.ID] = rec
	}
	return byID
}

func indexByParent(rows []*store.Record) map[string][]*store.Record {
	byParent := make(map[string][]*store.Record, len(rows))
	for _, rec := range rows {
		byParent[rec.ParentID] = append(byParent[rec.ParentID], rec)
	}
	return byParent
}

// unreachableIDs returns, sorted, the ids of nodes that no root-level node
// can reach by following child links.
func unreachableIDs(rows []*store.Record) []string {
	byParent := indexByParent(rows)

	visited := make(map[string]struct{}, len(rows))
	var queue []string
	for _, rec := range rows {
		if rec.ParentID == "" {
			visited[rec.ID] = struct{}{}
			queue = append(queue, rec.ID)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, child := range byParent[id] {
			if _, seen := visited[child.ID]; seen {
				continue
			}
			visited[child.ID] = struct{}{}
			queue = append(queue, child.ID)
		}
	}

	var out []string
	for _, rec := range rows {
		if _, seen := visited[rec.ID]; !seen {
			out = append(out, rec.ID)
		}
	}
	sort.Strings(out)
	return out
}
