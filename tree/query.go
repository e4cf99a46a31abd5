package tree

import (
	"context"
	"errors"
	"sort"

	"github.com/verdantio/arbor/store"
)

// GetNode returns a single node by id.
func (s *Service) GetNode(ctx context.Context, id string) (*Node, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return nodeFromRecord(rec), nil
}

// GetTree assembles the nested projection of a website's hierarchy from the
// flat rows: one pass builds an id-keyed arena, a second pass links children
// to parents through a parentID index. The result is transient and never
// written back. Orphaned rows surface at root level rather than being
// silently dropped; assembly is iterative, so residual cycles cannot cause
// unbounded recursion.
func (s *Service) GetTree(ctx context.Context, websiteID string) ([]*TreeNode, error) {
	rows, err := s.store.ListWebsite(ctx, websiteID)
	if err != nil {
		return nil, err
	}

	arena := make(map[string]*TreeNode, len(rows))
	for _, rec := range rows {
		arena[rec.ID] = &TreeNode{Node: *nodeFromRecord(rec)}
	}

	var roots []*TreeNode
	for _, rec := range rows {
		node := arena[rec.ID]
		if rec.ParentID == "" {
			roots = append(roots, node)
			continue
		}
		parent, ok := arena[rec.ParentID]
		if !ok || rec.ParentID == rec.ID {
			roots = append(roots, node)
			continue
		}
		parent.Children = append(parent.Children, node)
	}

	for _, node := range arena {
		sortTreeChildren(node.Children)
	}
	sortTreeChildren(roots)
	return roots, nil
}

func sortTreeChildren(children []*TreeNode) {
	sort.Slice(children, func(i, j int) bool {
		if children[i].Position != children[j].Position {
			return children[i].Position < children[j].Position
		}
		return children[i].ID < children[j].ID
	})
}

// GetDescendants returns every descendant of a node in ascending-depth
// order. The walk is iterative over a parentID index and tolerates residual
// corruption via a visited set.
func (s *Service) GetDescendants(ctx context.Context, id string) ([]*Node, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	rows, err := s.store.ListWebsite(ctx, rec.WebsiteID)
	if err != nil {
		return nil, err
	}

	byParent := make(map[string][]*store.Record, len(rows))
	for _, row := range rows {
		byParent[row.ParentID] = append(byParent[row.ParentID], row)
	}

	visited := map[string]struct{}{rec.ID: {}}
	queue := []string{rec.ID}
	var out []*Node
	for len(queue) > 0 {
		parentID := queue[0]
		queue = queue[1:]
		children := byParent[parentID]
		sortSiblingRecords(children)
		for _, child := range children {
			if _, seen := visited[child.ID]; seen {
				continue
			}
			visited[child.ID] = struct{}{}
			out = append(out, nodeFromRecord(child))
			queue = append(queue, child.ID)
		}
	}
	return out, nil
}

func sortSiblingRecords(recs []*store.Record) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Position != recs[j].Position {
			return recs[i].Position < recs[j].Position
		}
		return recs[i].ID < recs[j].ID
	})
}

// GetAncestors returns the ancestor chain of a node, root first, excluding
// the node itself. The walk is iterative with a hard depth bound.
func (s *Service) GetAncestors(ctx context.Context, id string) ([]*Node, error) {
	chain, err := s.ancestorChain(ctx, id)
	if err != nil {
		return nil, err
	}
	return nodesFromRecords(chain[:len(chain)-1]), nil
}

// GetBreadcrumbs returns the root-first trail to a node, including the node
// itself.
func (s *Service) GetBreadcrumbs(ctx context.Context, id string) ([]Breadcrumb, error) {
	chain, err := s.ancestorChain(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]Breadcrumb, len(chain))
	for i, rec := range chain {
		out[i] = Breadcrumb{Title: rec.Title, Path: rec.FullPath}
	}
	return out, nil
}

// ancestorChain returns [root, ..., node] for the given node id.
func (s *Service) ancestorChain(ctx context.Context, id string) ([]*store.Record, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	chain := []*store.Record{rec}
	for depth := 0; chain[0].ParentID != ""; depth++ {
		if depth > maxTreeDepth {
			return nil, ErrMaxDepthExceeded
		}
		parent, err := s.store.Get(ctx, chain[0].ParentID)
		if errors.Is(err, store.ErrNotFound) {
			break // orphaned ancestry ends the chain
		}
		if err != nil {
			return nil, err
		}
		chain = append([]*store.Record{parent}, chain...)
	}
	return chain, nil
}
