package tree

import (
	"time"

	"github.com/verdantio/arbor/store"
)

// Node is a single entry of a website's page hierarchy.
type Node struct {
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
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TreeNode is a transient nested projection of a node and its children,
// assembled per read. It is never the system of record.
type TreeNode struct {
	Node
	Children []*TreeNode
}

// Breadcrumb is one step of a root-first trail to a node.
type Breadcrumb struct {
	Title string
	Path  string
}

// CreateInput describes a node to create. Slug may be left empty to have it
// generated from Title. Position may be left nil to append the node at the
// end of its sibling group.
type CreateInput struct {
	WebsiteID     string
	ParentID      string
	Slug          string
	Title         string
	ContentItemID string
	Weight        int
	Position      *int
}

// UpdateInput describes a partial node update; nil fields are left
// untouched. A slug change recalculates the paths of the node and every
// descendant.
type UpdateInput struct {
	Slug   *string
	Title  *string
	Weight *int
}

// BulkUpdateItem pairs a node id with its update for BulkUpdate.
type BulkUpdateItem struct {
	ID     string
	Update UpdateInput
}

// ReorderItem assigns a new position to one node of a sibling group.
type ReorderItem struct {
	ID       string
	Position int
}

func nodeFromRecord(rec *store.Record) *Node {
	return &Node{
		ID:            rec.ID,
		WebsiteID:     rec.WebsiteID,
		ParentID:      rec.ParentID,
		Slug:          rec.Slug,
		FullPath:      rec.FullPath,
		PathDepth:     rec.PathDepth,
		Position:      rec.Position,
		Weight:        rec.Weight,
		Title:         rec.Title,
		ContentItemID: rec.ContentItemID,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}
}

func nodesFromRecords(recs []*store.Record) []*Node {
	out := make([]*Node, len(recs))
	for i, rec := range recs {
		out[i] = nodeFromRecord(rec)
	}
	return out
}
