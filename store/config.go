package store

// DynamoConfig holds table and index names for the DynamoDB-backed store.
type DynamoConfig struct {
	// NodeTable is the table holding node rows, keyed by "id".
	// Default: "arbor_nodes"
	NodeTable string

	// ConstraintTable is the table holding slug uniqueness constraint
	// records, keyed by ("pk", "sk").
	// Default: "arbor_slug_constraints"
	ConstraintTable string

	// SiblingIndex is the GSI over NodeTable with partition key "scope_key"
	// and sort key "position_key". It serves sibling-scope queries in
	// position order.
	// Default: "sibling-index"
	SiblingIndex string

	// WebsiteIndex is the GSI over NodeTable with partition key "website_id"
	// and sort key "full_path". It serves whole-website listings in path
	// order.
	// Default: "website-index"
	WebsiteIndex string
}

// DefaultDynamoConfig returns the default table and index names.
func DefaultDynamoConfig() DynamoConfig {
	return DynamoConfig{
		NodeTable:       "arbor_nodes",
		ConstraintTable: "arbor_slug_constraints",
		SiblingIndex:    "sibling-index",
		WebsiteIndex:    "website-index",
	}
}

// validate fills in defaults for empty fields.
func (c *DynamoConfig) validate() {
	if c.NodeTable == "" {
		c.NodeTable = "arbor_nodes"
	}
	if c.ConstraintTable == "" {
		c.ConstraintTable = "arbor_slug_constraints"
	}
	if c.SiblingIndex == "" {
		c.SiblingIndex = "sibling-index"
	}
	if c.WebsiteIndex == "" {
		c.WebsiteIndex = "website-index"
	}
}
