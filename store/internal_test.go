package store

import (
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// --- positionSortKey Tests ---

func TestPositionSortKey_Ordering(t *testing.T) {
	positions := []int{-5, -1, 0, 1, 2, 10, 100, 1 << 20}

	keys := make([]string, len(positions))
	for i, p := range positions {
		keys[i] = positionSortKey(p, "node")
	}

	if !sort.StringsAreSorted(keys) {
		t.Errorf("expected lexicographic order to match numeric order, got %v", keys)
	}
}

func TestPositionSortKey_UniquePerNode(t *testing.T) {
	a := positionSortKey(3, "node-a")
	b := positionSortKey(3, "node-b")
	if a == b {
		t.Error("expected distinct keys for distinct node ids at the same position")
	}
}

// --- Record Marshalling Tests ---

func TestDynamoRecordRoundTrip(t *testing.T) {
	rec := &Record{
		ID:            "n1",
		WebsiteID:     "site-1",
		ParentID:      "p1",
		Slug:          "about",
		FullPath:      "/home/about",
		PathDepth:     2,
		Position:      4,
		Weight:        -2,
		Title:         "About",
		ContentItemID: "content-9",
		Version:       7,
		CreatedAt:     time.Date(2026, 1, 2, 3, 4, 5, 600000000, time.UTC),
		UpdatedAt:     time.Date(2026, 1, 3, 3, 4, 5, 0, time.UTC),
	}

	got := fromDynamoRecord(toDynamoRecord(rec))

	if *got != *rec {
		t.Errorf("round trip mismatch:\n  in:  %+v\n  out: %+v", rec, got)
	}
}

func TestToDynamoRecord_IndexKeys(t *testing.T) {
	rec := &Record{ID: "n1", WebsiteID: "site-1", ParentID: "p1", Slug: "about", Position: 2}
	d := toDynamoRecord(rec)

	if d.ScopeKey != "WEBSITE#site-1#PARENT#p1" {
		t.Errorf("unexpected scope key %q", d.ScopeKey)
	}
	if d.PositionKey != positionSortKey(2, "n1") {
		t.Errorf("unexpected position key %q", d.PositionKey)
	}
}

// --- Transaction Error Mapping Tests ---

func canceled(codes ...string) error {
	reasons := make([]types.CancellationReason, len(codes))
	for i, code := range codes {
		if code != "" {
			reasons[i] = types.CancellationReason{Code: aws.String(code)}
		}
	}
	return &types.TransactionCanceledException{CancellationReasons: reasons}
}

func TestMapTransactionError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		kinds    []txItemKind
		expected error
	}{
		{
			name:     "nil passes through",
			err:      nil,
			expected: nil,
		},
		{
			name:     "slug claim condition failure",
			err:      canceled("None", "ConditionalCheckFailed"),
			kinds:    []txItemKind{itemUpdate, itemSlugClaim},
			expected: ErrSlugTaken,
		},
		{
			name:     "insert condition failure",
			err:      canceled("ConditionalCheckFailed"),
			kinds:    []txItemKind{itemInsert},
			expected: ErrAlreadyExists,
		},
		{
			name:     "read check failure is a conflict",
			err:      canceled("ConditionalCheckFailed", "None"),
			kinds:    []txItemKind{itemReadCheck, itemUpdate},
			expected: ErrTransactionConflict,
		},
		{
			name:     "version condition failure is a conflict",
			err:      canceled("None", "ConditionalCheckFailed"),
			kinds:    []txItemKind{itemSlugRelease, itemDelete},
			expected: ErrTransactionConflict,
		},
		{
			name:     "transaction conflict reason",
			err:      canceled("TransactionConflict"),
			kinds:    []txItemKind{itemUpdate},
			expected: ErrTransactionConflict,
		},
		{
			name:     "cancellation without reasons is a conflict",
			err:      canceled(),
			kinds:    nil,
			expected: ErrTransactionConflict,
		},
		{
			name:     "item-level conflict exception",
			err:      &types.TransactionConflictException{},
			expected: ErrTransactionConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapTransactionError(tt.err, tt.kinds)
			if !errors.Is(got, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestMapTransactionError_UnknownErrorPassesThrough(t *testing.T) {
	unknown := errors.New("network timeout")
	if got := mapTransactionError(unknown, nil); !errors.Is(got, unknown) {
		t.Errorf("expected unknown error to pass through, got %v", got)
	}
}

// --- Constraint Derivation Tests ---

// newTxn builds a transaction whose committed-row lookup is backed by the
// given rows, so staging logic can be exercised without a live client.
func newTxn(committed ...*Record) *dynamoTxn {
	rows := make(map[string]*Record, len(committed))
	for _, rec := range committed {
		rows[rec.ID] = rec
	}
	return &dynamoTxn{
		store: NewDynamo(nil, DefaultDynamoConfig()),
		lookup: func(id string) (*Record, error) {
			if rec, ok := rows[id]; ok {
				return rec.Clone(), nil
			}
			return nil, ErrNotFound
		},
		reads:  make(map[string]int64),
		writes: make(map[string]*pendingWrite),
	}
}

func TestConstraintItems_InsertClaims(t *testing.T) {
	tx := newTxn()
	rec := &Record{ID: "n1", WebsiteID: "site-1", Slug: "home"}
	tx.stage("n1", &pendingWrite{kind: writeInsert, rec: rec})

	items, kinds, err := tx.constraintItems()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 || kinds[0] != itemSlugClaim {
		t.Fatalf("expected one slug claim, got %d items", len(items))
	}
	if items[0].Put == nil || items[0].Put.ConditionExpression == nil ||
		*items[0].Put.ConditionExpression != "attribute_not_exists(pk)" {
		t.Error("expected claim to be conditioned on attribute_not_exists(pk)")
	}
}

func TestConstraintItems_SlugChangeReleasesAndClaims(t *testing.T) {
	tx := newTxn()
	old := &Record{ID: "n1", WebsiteID: "site-1", Slug: "home"}
	upd := &Record{ID: "n1", WebsiteID: "site-1", Slug: "start"}
	tx.stage("n1", &pendingWrite{kind: writeUpdate, rec: upd, old: old})

	items, kinds, err := tx.constraintItems()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected claim + release, got %d items", len(items))
	}
	if kinds[0] != itemSlugClaim || kinds[1] != itemSlugRelease {
		t.Errorf("expected [claim, release], got %v", kinds)
	}
}

func TestConstraintItems_UnchangedSlugNoOps(t *testing.T) {
	tx := newTxn()
	old := &Record{ID: "n1", WebsiteID: "site-1", Slug: "home", Title: "old"}
	upd := &Record{ID: "n1", WebsiteID: "site-1", Slug: "home", Title: "new"}
	tx.stage("n1", &pendingWrite{kind: writeUpdate, rec: upd, old: old})

	items, _, err := tx.constraintItems()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected no constraint items for unchanged slug, got %d", len(items))
	}
}

func TestConstraintItems_SlugHandoffCancelsOut(t *testing.T) {
	// n1 vacates "home", n2 takes it over in the same transaction.
	tx := newTxn()
	tx.stage("n1", &pendingWrite{
		kind: writeUpdate,
		rec:  &Record{ID: "n1", WebsiteID: "site-1", Slug: "start"},
		old:  &Record{ID: "n1", WebsiteID: "site-1", Slug: "home"},
	})
	tx.stage("n2", &pendingWrite{
		kind: writeUpdate,
		rec:  &Record{ID: "n2", WebsiteID: "site-1", Slug: "home"},
		old:  &Record{ID: "n2", WebsiteID: "site-1", Slug: "landing"},
	})

	items, kinds, err := tx.constraintItems()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// "home" transfers in place: expect a claim for "start" and a release for
	// "landing", but no operation touching "home".
	claims, releases := 0, 0
	for _, k := range kinds {
		switch k {
		case itemSlugClaim:
			claims++
		case itemSlugRelease:
			releases++
		}
	}
	if len(items) != 2 || claims != 1 || releases != 1 {
		t.Errorf("expected exactly one claim and one release, got %d items (%d claims, %d releases)",
			len(items), claims, releases)
	}
}

func TestConstraintItems_DuplicateClaimFails(t *testing.T) {
	tx := newTxn()
	tx.stage("n1", &pendingWrite{kind: writeInsert, rec: &Record{ID: "n1", WebsiteID: "site-1", Slug: "home"}})
	tx.stage("n2", &pendingWrite{kind: writeInsert, rec: &Record{ID: "n2", WebsiteID: "site-1", Slug: "HOME"}})

	_, _, err := tx.constraintItems()
	if !errors.Is(err, ErrSlugTaken) {
		t.Errorf("expected ErrSlugTaken for duplicate in-transaction claim, got %v", err)
	}
}

func TestConstraintItems_DeleteReleases(t *testing.T) {
	tx := newTxn()
	tx.stage("n1", &pendingWrite{
		kind: writeDelete,
		old:  &Record{ID: "n1", WebsiteID: "site-1", Slug: "home"},
	})

	items, kinds, err := tx.constraintItems()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 || kinds[0] != itemSlugRelease {
		t.Fatalf("expected one release, got %d items", len(items))
	}
	if items[0].Delete == nil {
		t.Error("expected a Delete item for the released constraint")
	}
}

// --- Txn Write Collapse Tests ---

func TestDynamoTxn_InsertThenDeleteNetsToNothing(t *testing.T) {
	tx := newTxn()
	if err := tx.Insert(&Record{ID: "n1", WebsiteID: "site-1", Slug: "home"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tx.Delete("n1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(tx.writes) != 0 || len(tx.order) != 0 {
		t.Errorf("expected no staged writes, got %d", len(tx.writes))
	}
}

func TestDynamoTxn_GetSeesStagedWrite(t *testing.T) {
	tx := newTxn()
	if err := tx.Insert(&Record{ID: "n1", WebsiteID: "site-1", Slug: "home"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec, err := tx.Get("n1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Slug != "home" || rec.Version != 1 {
		t.Errorf("expected staged insert with version 1, got %+v", rec)
	}
}

func TestDynamoTxn_UpdateStagedInsertKeepsVersionOne(t *testing.T) {
	tx := newTxn()
	if err := tx.Insert(&Record{ID: "n1", WebsiteID: "site-1", Slug: "home"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tx.Update(&Record{ID: "n1", WebsiteID: "site-1", Slug: "home", Title: "Home"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	w := tx.writes["n1"]
	if w.kind != writeInsert {
		t.Errorf("expected staged write to remain an insert, got kind %d", w.kind)
	}
	if w.rec.Version != 1 {
		t.Errorf("expected version 1 for restaged insert, got %d", w.rec.Version)
	}
	if w.rec.Title != "Home" {
		t.Errorf("expected restaged title 'Home', got %q", w.rec.Title)
	}
}

func TestDynamoTxn_InsertExistingRowFails(t *testing.T) {
	tx := newTxn(&Record{ID: "n1", WebsiteID: "site-1", Slug: "home", Version: 1})

	err := tx.Insert(&Record{ID: "n1", WebsiteID: "site-1", Slug: "home"})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestDynamoTxn_UpdateCommittedRowBumpsVersion(t *testing.T) {
	tx := newTxn(&Record{ID: "n1", WebsiteID: "site-1", Slug: "home", Version: 3})

	if err := tx.Update(&Record{ID: "n1", WebsiteID: "site-1", Slug: "home", Title: "Home"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	w := tx.writes["n1"]
	if w.kind != writeUpdate {
		t.Fatalf("expected a staged update, got kind %d", w.kind)
	}
	if w.rec.Version != 4 || w.old.Version != 3 {
		t.Errorf("expected version 3 -> 4, got old %d staged %d", w.old.Version, w.rec.Version)
	}
}

func TestDynamoTxn_DeleteMissingRowFails(t *testing.T) {
	tx := newTxn()

	if err := tx.Delete("ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDynamoTxn_GetCommittedRowRecordsVersion(t *testing.T) {
	tx := newTxn(&Record{ID: "n1", WebsiteID: "site-1", Slug: "home", Version: 5})

	rec, err := tx.Get("n1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Version != 5 {
		t.Errorf("expected version 5, got %d", rec.Version)
	}
	if tx.reads["n1"] != 5 {
		t.Errorf("expected the read version to be recorded, got %d", tx.reads["n1"])
	}
}

// --- Config Tests ---

func TestDefaultDynamoConfig(t *testing.T) {
	cfg := DefaultDynamoConfig()

	if cfg.NodeTable != "arbor_nodes" {
		t.Errorf("expected NodeTable 'arbor_nodes', got %q", cfg.NodeTable)
	}
	if cfg.ConstraintTable != "arbor_slug_constraints" {
		t.Errorf("expected ConstraintTable 'arbor_slug_constraints', got %q", cfg.ConstraintTable)
	}
	if cfg.SiblingIndex != "sibling-index" {
		t.Errorf("expected SiblingIndex 'sibling-index', got %q", cfg.SiblingIndex)
	}
	if cfg.WebsiteIndex != "website-index" {
		t.Errorf("expected WebsiteIndex 'website-index', got %q", cfg.WebsiteIndex)
	}
}

func TestDynamoConfigValidate_FillsDefaults(t *testing.T) {
	cfg := DynamoConfig{}
	cfg.validate()

	if cfg != DefaultDynamoConfig() {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}
