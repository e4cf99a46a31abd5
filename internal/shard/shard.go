// Package shard provides partition key generation for the slug constraint table.
package shard

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// SlugConstraintPK computes a hash-distributed partition key for a slug
// uniqueness constraint within a sibling scope. Hashing spreads constraint
// records across partitions, eliminating hot partition risk for websites
// with very large sibling groups. The slug is lowercased first so that the
// constraint is case-insensitive.
func SlugConstraintPK(websiteID, parentID, slug string) string {
	data := fmt.Sprintf("%s#%s#%s", websiteID, parentID, strings.ToLower(slug))
	h := sha256.Sum256([]byte(data))
	return hex.EncodeToString(h[:16]) // 128-bit hash as hex
}

// SiblingScopeKey returns the partition key for the sibling-scope index.
// All nodes sharing a (websiteID, parentID) scope land on the same key; a
// root-level scope uses an empty parentID.
func SiblingScopeKey(websiteID, parentID string) string {
	return fmt.Sprintf("WEBSITE#%s#PARENT#%s", websiteID, parentID)
}
