package tree_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/verdantio/arbor/tree"
)

func TestGetNode_NotFound(t *testing.T) {
	svc, _ := newService()
	_, err := svc.GetNode(context.Background(), "ghost")
	if !errors.Is(err, tree.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetTree_NestsByParentAndPosition(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	home := mustCreate(t, svc, tree.CreateInput{WebsiteID: "site-1", Title: "Home"})
	about := mustCreate(t, svc, tree.CreateInput{WebsiteID: "site-1", Title: "About"})
	team := mustCreate(t, svc, tree.CreateInput{WebsiteID: "site-1", ParentID: about.ID, Title: "Team"})
	jobs := mustCreate(t, svc, tree.CreateInput{WebsiteID: "site-1", ParentID: about.ID, Title: "Jobs"})
	mustCreate(t, svc, tree.CreateInput{WebsiteID: "site-2", Title: "Elsewhere"})

	roots, err := svc.GetTree(ctx, "site-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(roots) != 2 {
		t.Fatalf("expected 2 roots, got %d", len(roots))
	}
	if roots[0].ID != home.ID || roots[1].ID != about.ID {
		t.Errorf("expected roots ordered by position [home about], got [%s %s]", roots[0].Slug, roots[1].Slug)
	}

	children := roots[1].Children
	if len(children) != 2 {
		t.Fatalf("expected 2 children under about, got %d", len(children))
	}
	if children[0].ID != team.ID || children[1].ID != jobs.ID {
		t.Errorf("expected children ordered by position [team jobs], got [%s %s]", children[0].Slug, children[1].Slug)
	}
	if len(roots[0].Children) != 0 {
		t.Errorf("expected home to have no children, got %d", len(roots[0].Children))
	}
}

func TestGetTree_EmptyWebsite(t *testing.T) {
	svc, _ := newService()
	roots, err := svc.GetTree(context.Background(), "site-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(roots) != 0 {
		t.Errorf("expected no roots, got %d", len(roots))
	}
}

func TestGetTree_OrphansSurfaceAtRoot(t *testing.T) {
	svc, st := newService()
	orphan := sibling("orphan-1", "site-1", "ghost-parent", "lost", 1)
	orphan.FullPath = "/ghost/lost"
	orphan.PathDepth = 2
	seedRecords(t, st, orphan)

	roots, err := svc.GetTree(context.Background(), "site-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(roots) != 1 || roots[0].ID != "orphan-1" {
		t.Fatalf("expected the orphan to surface at root level, got %d roots", len(roots))
	}
}

func TestGetDescendants_AscendingDepth(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	about := mustCreate(t, svc, tree.CreateInput{WebsiteID: "site-1", Title: "About"})
	team := mustCreate(t, svc, tree.CreateInput{WebsiteID: "site-1", ParentID: about.ID, Title: "Team"})
	jobs := mustCreate(t, svc, tree.CreateInput{WebsiteID: "site-1", ParentID: about.ID, Title: "Jobs"})
	alice := mustCreate(t, svc, tree.CreateInput{WebsiteID: "site-1", ParentID: team.ID, Title: "Alice"})

	got, err := svc.GetDescendants(ctx, about.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantIDs := []string{team.ID, jobs.ID, alice.ID}
	if len(got) != len(wantIDs) {
		t.Fatalf("expected %d descendants, got %d", len(wantIDs), len(got))
	}
	for i, node := range got {
		if node.ID != wantIDs[i] {
			t.Errorf("index %d: expected %s, got %s (%s)", i, wantIDs[i], node.ID, node.Slug)
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i].PathDepth < got[i-1].PathDepth {
			t.Errorf("expected ascending depth, got %d after %d", got[i].PathDepth, got[i-1].PathDepth)
		}
	}
}

func TestGetDescendants_Leaf(t *testing.T) {
	svc, _ := newService()
	leaf := mustCreate(t, svc, tree.CreateInput{WebsiteID: "site-1", Title: "Leaf"})

	got, err := svc.GetDescendants(context.Background(), leaf.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no descendants, got %d", len(got))
	}
}

func TestGetAncestors_RootFirstExcludingSelf(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	home := mustCreate(t, svc, tree.CreateInput{WebsiteID: "site-1", Title: "Home"})
	about := mustCreate(t, svc, tree.CreateInput{WebsiteID: "site-1", ParentID: home.ID, Title: "About"})
	team := mustCreate(t, svc, tree.CreateInput{WebsiteID: "site-1", ParentID: about.ID, Title: "Team"})

	got, err := svc.GetAncestors(ctx, team.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 ancestors, got %d", len(got))
	}
	if got[0].ID != home.ID || got[1].ID != about.ID {
		t.Errorf("expected [home about], got [%s %s]", got[0].Slug, got[1].Slug)
	}
}

func TestGetAncestors_RootNode(t *testing.T) {
	svc, _ := newService()
	home := mustCreate(t, svc, tree.CreateInput{WebsiteID: "site-1", Title: "Home"})

	got, err := svc.GetAncestors(context.Background(), home.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no ancestors for a root node, got %d", len(got))
	}
}

func TestGetBreadcrumbs_ReconstructsFullPath(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	home := mustCreate(t, svc, tree.CreateInput{WebsiteID: "site-1", Title: "Home"})
	about := mustCreate(t, svc, tree.CreateInput{WebsiteID: "site-1", ParentID: home.ID, Title: "About"})
	team := mustCreate(t, svc, tree.CreateInput{WebsiteID: "site-1", ParentID: about.ID, Title: "Team"})

	crumbs, err := svc.GetBreadcrumbs(ctx, team.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantTitles := []string{"Home", "About", "Team"}
	if len(crumbs) != len(wantTitles) {
		t.Fatalf("expected %d breadcrumbs, got %d", len(wantTitles), len(crumbs))
	}
	for i, crumb := range crumbs {
		if crumb.Title != wantTitles[i] {
			t.Errorf("index %d: expected title %q, got %q", i, wantTitles[i], crumb.Title)
		}
	}

	// Each breadcrumb path is a prefix of the next; the last equals the
	// node's own full path.
	for i := 1; i < len(crumbs); i++ {
		if !strings.HasPrefix(crumbs[i].Path, crumbs[i-1].Path+"/") {
			t.Errorf("expected %q to extend %q", crumbs[i].Path, crumbs[i-1].Path)
		}
	}
	if crumbs[len(crumbs)-1].Path != team.FullPath {
		t.Errorf("expected last breadcrumb %q, got %q", team.FullPath, crumbs[len(crumbs)-1].Path)
	}
}

func TestGetBreadcrumbs_NotFound(t *testing.T) {
	svc, _ := newService()
	_, err := svc.GetBreadcrumbs(context.Background(), "ghost")
	if !errors.Is(err, tree.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
