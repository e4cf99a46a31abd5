package shard

import (
	"strings"
	"testing"
)

func TestSlugConstraintPK_Deterministic(t *testing.T) {
	pk1 := SlugConstraintPK("site-1", "parent-1", "about")
	pk2 := SlugConstraintPK("site-1", "parent-1", "about")

	if pk1 != pk2 {
		t.Errorf("expected deterministic PK, got %q and %q", pk1, pk2)
	}
}

func TestSlugConstraintPK_CaseInsensitive(t *testing.T) {
	lower := SlugConstraintPK("site-1", "parent-1", "about")
	upper := SlugConstraintPK("site-1", "parent-1", "ABOUT")
	mixed := SlugConstraintPK("site-1", "parent-1", "About")

	if lower != upper {
		t.Errorf("expected same PK for 'about' and 'ABOUT', got %q and %q", lower, upper)
	}
	if lower != mixed {
		t.Errorf("expected same PK for 'about' and 'About', got %q and %q", lower, mixed)
	}
}

func TestSlugConstraintPK_ScopeIsolation(t *testing.T) {
	tests := []struct {
		name      string
		websiteID string
		parentID  string
		slug      string
	}{
		{"different website", "site-2", "parent-1", "about"},
		{"different parent", "site-1", "parent-2", "about"},
		{"different slug", "site-1", "parent-1", "contact"},
		{"root scope", "site-1", "", "about"},
	}

	base := SlugConstraintPK("site-1", "parent-1", "about")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pk := SlugConstraintPK(tt.websiteID, tt.parentID, tt.slug)
			if pk == base {
				t.Errorf("expected distinct PK for scope %q/%q/%q", tt.websiteID, tt.parentID, tt.slug)
			}
		})
	}
}

func TestSlugConstraintPK_Length(t *testing.T) {
	pk := SlugConstraintPK("site-1", "parent-1", "about")

	// 128-bit hash encoded as hex
	if len(pk) != 32 {
		t.Errorf("expected 32 hex characters, got %d (%q)", len(pk), pk)
	}
	for _, c := range pk {
		if !strings.ContainsRune("0123456789abcdef", c) {
			t.Errorf("expected lowercase hex, got character %q in %q", c, pk)
		}
	}
}

func TestSlugConstraintPK_DelimiterInjection(t *testing.T) {
	// A crafted websiteID must not collide with a different scope.
	a := SlugConstraintPK("site-1#parent-1", "", "about")
	b := SlugConstraintPK("site-1", "parent-1", "about")

	if a == b {
		t.Error("expected distinct PKs for delimiter-crafted scope")
	}
}

func TestSiblingScopeKey(t *testing.T) {
	tests := []struct {
		name      string
		websiteID string
		parentID  string
		expected  string
	}{
		{"child scope", "site-1", "node-7", "WEBSITE#site-1#PARENT#node-7"},
		{"root scope", "site-1", "", "WEBSITE#site-1#PARENT#"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := SiblingScopeKey(tt.websiteID, tt.parentID)
			if key != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, key)
			}
		})
	}
}
