package tree

import (
	"time"

	"github.com/verdantio/arbor/store"
)

// maxTreeDepth is the hard bound on ancestor walks and subtree traversals.
// It turns pre-existing cycles into errors instead of unbounded loops;
// RepairTree removes such corruption.
const maxTreeDepth = 100

// ComputePath derives a node's full path from its parent's path and its own
// slug. An empty parentPath means the node is root-level.
func ComputePath(parentPath, slug string) string {
	return parentPath + "/" + slug
}

// ComputeDepth derives a node's path depth from its parent's depth. A parent
// depth of 0 means the node is root-level.
func ComputeDepth(parentDepth int) int {
	return parentDepth + 1
}

// recalculateDescendantPaths rewrites FullPath, PathDepth, and UpdatedAt for
// every descendant of root, walking breadth-first so each descendant derives
// from an already-updated ancestor and never from a stale one. root itself
// must already carry its new values and be staged in the transaction.
func recalculateDescendantPaths(tx store.Txn, root *store.Record, now time.Time) error {
	queue := []*store.Record{root}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]

		if parent.PathDepth > maxTreeDepth {
			return ErrMaxDepthExceeded
		}

		children, err := tx.ListChildren(parent.WebsiteID, parent.ID)
		if err != nil {
			return err
		}
		for _, child := range children {
			child.FullPath = ComputePath(parent.FullPath, child.Slug)
			child.PathDepth = ComputeDepth(parent.PathDepth)
			child.UpdatedAt = now
			if err := tx.Update(child); err != nil {
				return err
			}
			queue = append(queue, child)
		}
	}
	return nil
}

// collectSubtree returns root plus all of its descendants in ascending-depth
// (breadth-first) order.
func collectSubtree(tx store.Txn, root *store.Record) ([]*store.Record, error) {
	out := []*store.Record{root}
	for i := 0; i < len(out); i++ {
		if len(out) > 1<<20 || out[i].PathDepth > maxTreeDepth+1 {
			return nil, ErrMaxDepthExceeded
		}
		children, err := tx.ListChildren(out[i].WebsiteID, out[i].ID)
		if err != nil {
			return nil, err
		}
		out = append(out, children...)
	}
	return out, nil
}
