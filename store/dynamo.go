package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/verdantio/arbor/internal/shard"
)

// maxTransactItems is DynamoDB's hard cap on items per TransactWriteItems
// call. Transactions that stage more than this fail with
// ErrTransactionTooLarge instead of partially committing. Note that a node
// insert costs two items (the row plus its slug-constraint claim), so a
// single transaction holds at most 50 inserts.
const maxTransactItems = 100

// DynamoStore is a DynamoDB-backed Store.
//
// Node rows live in a single table keyed by id, with two GSIs: one over the
// sibling scope (position order) and one over the website (path order).
// Transactions use optimistic concurrency: every row read inside the
// transaction has its version re-checked at commit, and all writes carry
// version conditions, so a concurrent committed change to any observed row
// cancels the whole transaction with ErrTransactionConflict.
//
// Rows that were read as absent are not condition-checked, so phantom
// inserts into a scanned scope can slip past a commit. Slug uniqueness does
// not depend on that: it is enforced by constraint records claimed with
// attribute_not_exists conditions, the only invariant that needs range-level
// protection.
type DynamoStore struct {
	client *dynamodb.Client
	config DynamoConfig
}

// NewDynamo creates a DynamoDB-backed store.
func NewDynamo(client *dynamodb.Client, config DynamoConfig) *DynamoStore {
	config.validate()
	return &DynamoStore{client: client, config: config}
}

// dynamoRecord is the marshalled row shape, including the GSI key attributes.
type dynamoRecord struct {
	ID            string `dynamodbav:"id"`
	WebsiteID     string `dynamodbav:"website_id"`
	ParentID      string `dynamodbav:"parent_id"`
	Slug          string `dynamodbav:"slug"`
	FullPath      string `dynamodbav:"full_path"`
	PathDepth     int    `dynamodbav:"path_depth"`
	Position      int    `dynamodbav:"position"`
	Weight        int    `dynamodbav:"weight"`
	Title         string `dynamodbav:"title"`
	ContentItemID string `dynamodbav:"content_item_id"`
	Version       int64  `dynamodbav:"version"`
	CreatedAt     string `dynamodbav:"created_at"`
	UpdatedAt     string `dynamodbav:"updated_at"`
	ScopeKey      string `dynamodbav:"scope_key"`
	PositionKey   string `dynamodbav:"position_key"`
}

// positionSortKey encodes a position so lexicographic order on the sort key
// matches numeric order, negatives included (sign-bit flip maps int64 order
// onto uint64 order). The id suffix keeps keys unique within a scope.
func positionSortKey(position int, id string) string {
	return fmt.Sprintf("POS#%016x#%s", uint64(int64(position))^(1<<63), id)
}

func toDynamoRecord(rec *Record) dynamoRecord {
	return dynamoRecord{
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
		Version:       rec.Version,
		CreatedAt:     rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:     rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
		ScopeKey:      shard.SiblingScopeKey(rec.WebsiteID, rec.ParentID),
		PositionKey:   positionSortKey(rec.Position, rec.ID),
	}
}

func fromDynamoRecord(d dynamoRecord) *Record {
	createdAt, _ := time.Parse(time.RFC3339Nano, d.CreatedAt)
	updatedAt, _ := time.Parse(time.RFC3339Nano, d.UpdatedAt)
	return &Record{
		ID:            d.ID,
		WebsiteID:     d.WebsiteID,
		ParentID:      d.ParentID,
		Slug:          d.Slug,
		FullPath:      d.FullPath,
		PathDepth:     d.PathDepth,
		Position:      d.Position,
		Weight:        d.Weight,
		Title:         d.Title,
		ContentItemID: d.ContentItemID,
		Version:       d.Version,
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
	}
}

func (s *DynamoStore) nodeKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberS{Value: id},
	}
}

func (s *DynamoStore) constraintKey(pk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: pk},
		"sk": &types.AttributeValueMemberS{Value: "CONSTRAINT"},
	}
}

// Get returns the node with the given id, or ErrNotFound.
func (s *DynamoStore) Get(ctx context.Context, id string) (*Record, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.config.NodeTable),
		Key:       s.nodeKey(id),
	})
	if err != nil {
		return nil, err
	}
	if result.Item == nil {
		return nil, ErrNotFound
	}

	var d dynamoRecord
	if err := attributevalue.UnmarshalMap(result.Item, &d); err != nil {
		return nil, fmt.Errorf("unmarshal node %s: %w", id, err)
	}
	return fromDynamoRecord(d), nil
}

// ListChildren queries the sibling-scope GSI; results arrive in position
// order via the sort key.
func (s *DynamoStore) ListChildren(ctx context.Context, websiteID, parentID string) ([]*Record, error) {
	return s.queryIndex(ctx, s.config.SiblingIndex, "scope_key = :pk",
		shard.SiblingScopeKey(websiteID, parentID))
}

// ListWebsite queries the website GSI; results arrive in full-path order.
func (s *DynamoStore) ListWebsite(ctx context.Context, websiteID string) ([]*Record, error) {
	return s.queryIndex(ctx, s.config.WebsiteIndex, "website_id = :pk", websiteID)
}

func (s *DynamoStore) queryIndex(ctx context.Context, index, keyCond, pk string) ([]*Record, error) {
	var out []*Record
	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:              aws.String(s.config.NodeTable),
		IndexName:              aws.String(index),
		KeyConditionExpression: aws.String(keyCond),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: pk},
		},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range page.Items {
			var d dynamoRecord
			if err := attributevalue.UnmarshalMap(raw, &d); err != nil {
				return nil, fmt.Errorf("unmarshal node: %w", err)
			}
			out = append(out, fromDynamoRecord(d))
		}
	}
	return out, nil
}

// CountWebsite counts the nodes of a website without fetching them.
func (s *DynamoStore) CountWebsite(ctx context.Context, websiteID string) (int, error) {
	n := 0
	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:              aws.String(s.config.NodeTable),
		IndexName:              aws.String(s.config.WebsiteIndex),
		KeyConditionExpression: aws.String("website_id = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: websiteID},
		},
		Select: types.SelectCount,
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, err
		}
		n += int(page.Count)
	}
	return n, nil
}

// WithTransaction buffers fn's writes and commits them in one
// TransactWriteItems call with version condition checks.
func (s *DynamoStore) WithTransaction(ctx context.Context, fn func(Txn) error) error {
	tx := &dynamoTxn{
		ctx:    ctx,
		store:  s,
		reads:  make(map[string]int64),
		writes: make(map[string]*pendingWrite),
	}
	tx.lookup = func(id string) (*Record, error) {
		return s.Get(ctx, id)
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}

type writeKind int

const (
	writeInsert writeKind = iota
	writeUpdate
	writeDelete
)

// pendingWrite is a staged mutation of one node row.
type pendingWrite struct {
	kind writeKind
	rec  *Record // staged value; nil for deletes
	old  *Record // committed pre-image; nil for inserts
}

// dynamoTxn implements Txn over buffered writes and version-recorded reads.
type dynamoTxn struct {
	ctx    context.Context
	store  *DynamoStore
	lookup func(id string) (*Record, error) // committed-row fetch
	reads  map[string]int64                 // id -> observed version, for rows read but not written
	writes map[string]*pendingWrite
	order  []string // write ids in first-staged order
}

func (t *dynamoTxn) Get(id string) (*Record, error) {
	if w, ok := t.writes[id]; ok {
		if w.kind == writeDelete {
			return nil, ErrNotFound
		}
		return w.rec.Clone(), nil
	}
	rec, err := t.lookup(id)
	if err != nil {
		return nil, err
	}
	t.reads[id] = rec.Version
	return rec, nil
}

func (t *dynamoTxn) ListChildren(websiteID, parentID string) ([]*Record, error) {
	base, err := t.store.ListChildren(t.ctx, websiteID, parentID)
	if err != nil {
		return nil, err
	}
	return t.overlay(base, func(r *Record) bool {
		return r.WebsiteID == websiteID && r.ParentID == parentID
	}, sortSiblings), nil
}

func (t *dynamoTxn) ListWebsite(websiteID string) ([]*Record, error) {
	base, err := t.store.ListWebsite(t.ctx, websiteID)
	if err != nil {
		return nil, err
	}
	return t.overlay(base, func(r *Record) bool {
		return r.WebsiteID == websiteID
	}, sortByPath), nil
}

// overlay merges committed rows with this transaction's staged writes and
// records the versions of the committed rows it returns.
func (t *dynamoTxn) overlay(base []*Record, match func(*Record) bool, order func([]*Record)) []*Record {
	var out []*Record
	for _, rec := range base {
		if _, written := t.writes[rec.ID]; written {
			continue // superseded by a staged write
		}
		t.reads[rec.ID] = rec.Version
		out = append(out, rec)
	}
	for _, id := range t.order {
		w := t.writes[id]
		if w.kind != writeDelete && match(w.rec) {
			out = append(out, w.rec.Clone())
		}
	}
	order(out)
	return out
}

// stage records a write, replacing any earlier staged write for the same id.
func (t *dynamoTxn) stage(id string, w *pendingWrite) {
	if _, ok := t.writes[id]; !ok {
		t.order = append(t.order, id)
	}
	t.writes[id] = w
	delete(t.reads, id) // the write's own condition subsumes the read check
}

// committed fetches the committed pre-image of a row, if any.
func (t *dynamoTxn) committed(id string) (*Record, error) {
	rec, err := t.lookup(id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return rec, err
}

func (t *dynamoTxn) Insert(rec *Record) error {
	if w, ok := t.writes[rec.ID]; ok {
		if w.kind != writeDelete {
			return ErrAlreadyExists
		}
		// Delete followed by insert of the same id collapses into a
		// replacement, since DynamoDB rejects two operations on one item.
		staged := rec.Clone()
		staged.Version = w.old.Version + 1
		t.stage(rec.ID, &pendingWrite{kind: writeUpdate, rec: staged, old: w.old})
		return nil
	}

	old, err := t.committed(rec.ID)
	if err != nil {
		return err
	}
	if old != nil {
		return ErrAlreadyExists
	}
	staged := rec.Clone()
	staged.Version = 1
	t.stage(rec.ID, &pendingWrite{kind: writeInsert, rec: staged})
	return nil
}

func (t *dynamoTxn) Update(rec *Record) error {
	if w, ok := t.writes[rec.ID]; ok {
		if w.kind == writeDelete {
			return ErrNotFound
		}
		staged := rec.Clone()
		staged.Version = w.rec.Version
		t.stage(rec.ID, &pendingWrite{kind: w.kind, rec: staged, old: w.old})
		return nil
	}

	old, err := t.committed(rec.ID)
	if err != nil {
		return err
	}
	if old == nil {
		return ErrNotFound
	}
	staged := rec.Clone()
	staged.Version = old.Version + 1
	t.stage(rec.ID, &pendingWrite{kind: writeUpdate, rec: staged, old: old})
	return nil
}

func (t *dynamoTxn) Delete(id string) error {
	if w, ok := t.writes[id]; ok {
		switch w.kind {
		case writeDelete:
			return ErrNotFound
		case writeInsert:
			// Insert plus delete in the same transaction nets to nothing.
			delete(t.writes, id)
			for i, oid := range t.order {
				if oid == id {
					t.order = append(t.order[:i], t.order[i+1:]...)
					break
				}
			}
			return nil
		default:
			t.stage(id, &pendingWrite{kind: writeDelete, old: w.old})
			return nil
		}
	}

	old, err := t.committed(id)
	if err != nil {
		return err
	}
	if old == nil {
		return ErrNotFound
	}
	t.stage(id, &pendingWrite{kind: writeDelete, old: old})
	return nil
}

// txItemKind tags each transaction item so cancellation reasons can be
// mapped back to typed errors.
type txItemKind int

const (
	itemReadCheck txItemKind = iota
	itemInsert
	itemUpdate
	itemDelete
	itemSlugClaim
	itemSlugRelease
)

func (t *dynamoTxn) commit() error {
	if len(t.reads) == 0 && len(t.writes) == 0 {
		return nil
	}

	var items []types.TransactWriteItem
	var kinds []txItemKind

	// Re-check every row read but not written; a concurrent committed change
	// to any of them cancels the transaction.
	readIDs := make([]string, 0, len(t.reads))
	for id := range t.reads {
		readIDs = append(readIDs, id)
	}
	sort.Strings(readIDs)
	for _, id := range readIDs {
		items = append(items, types.TransactWriteItem{
			ConditionCheck: &types.ConditionCheck{
				TableName:           aws.String(t.store.config.NodeTable),
				Key:                 t.store.nodeKey(id),
				ConditionExpression: aws.String("#version = :v"),
				ExpressionAttributeNames: map[string]string{
					"#version": "version",
				},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":v": &types.AttributeValueMemberN{
						Value: strconv.FormatInt(t.reads[id], 10),
					},
				},
			},
		})
		kinds = append(kinds, itemReadCheck)
	}

	// Node writes, in staging order.
	for _, id := range t.order {
		w := t.writes[id]
		switch w.kind {
		case writeInsert, writeUpdate:
			item, err := attributevalue.MarshalMap(toDynamoRecord(w.rec))
			if err != nil {
				return fmt.Errorf("marshal node %s: %w", id, err)
			}
			put := &types.Put{
				TableName: aws.String(t.store.config.NodeTable),
				Item:      item,
			}
			if w.kind == writeInsert {
				put.ConditionExpression = aws.String("attribute_not_exists(id)")
				kinds = append(kinds, itemInsert)
			} else {
				put.ConditionExpression = aws.String("#version = :expected")
				put.ExpressionAttributeNames = map[string]string{"#version": "version"}
				put.ExpressionAttributeValues = map[string]types.AttributeValue{
					":expected": &types.AttributeValueMemberN{
						Value: strconv.FormatInt(w.old.Version, 10),
					},
				}
				kinds = append(kinds, itemUpdate)
			}
			items = append(items, types.TransactWriteItem{Put: put})
		case writeDelete:
			items = append(items, types.TransactWriteItem{
				Delete: &types.Delete{
					TableName:           aws.String(t.store.config.NodeTable),
					Key:                 t.store.nodeKey(id),
					ConditionExpression: aws.String("#version = :expected"),
					ExpressionAttributeNames: map[string]string{
						"#version": "version",
					},
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":expected": &types.AttributeValueMemberN{
							Value: strconv.FormatInt(w.old.Version, 10),
						},
					},
				},
			})
			kinds = append(kinds, itemDelete)
		}
	}

	// Slug constraint claims and releases derived from the node writes.
	claimItems, claimKinds, err := t.constraintItems()
	if err != nil {
		return err
	}
	items = append(items, claimItems...)
	kinds = append(kinds, claimKinds...)

	if len(items) > maxTransactItems {
		return fmt.Errorf("%w: %d items", ErrTransactionTooLarge, len(items))
	}

	_, err = t.store.client.TransactWriteItems(t.ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	return mapTransactionError(err, kinds)
}

// constraintItems derives slug constraint table operations from the staged
// node writes. A claim and a release of the same constraint key cancel out,
// keeping the constraint record alive across an in-transaction slug swap.
func (t *dynamoTxn) constraintItems() ([]types.TransactWriteItem, []txItemKind, error) {
	claims := make(map[string]*Record)
	releases := make(map[string]struct{})
	var claimOrder []string

	for _, id := range t.order {
		w := t.writes[id]
		var oldKey, newKey string
		if w.old != nil {
			oldKey = shard.SlugConstraintPK(w.old.WebsiteID, w.old.ParentID, w.old.Slug)
		}
		if w.rec != nil {
			newKey = shard.SlugConstraintPK(w.rec.WebsiteID, w.rec.ParentID, w.rec.Slug)
		}
		if oldKey == newKey {
			continue
		}
		if oldKey != "" {
			releases[oldKey] = struct{}{}
		}
		if newKey != "" {
			if prior, ok := claims[newKey]; ok && prior.ID != w.rec.ID {
				return nil, nil, ErrSlugTaken
			}
			claims[newKey] = w.rec
			claimOrder = append(claimOrder, newKey)
		}
	}

	var items []types.TransactWriteItem
	var kinds []txItemKind
	for _, key := range claimOrder {
		rec, ok := claims[key]
		if !ok {
			continue // already emitted or cancelled
		}
		delete(claims, key)
		if _, released := releases[key]; released {
			// Constraint ownership moves within this transaction; the
			// existing record stays in place.
			delete(releases, key)
			continue
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName: aws.String(t.store.config.ConstraintTable),
				Item: map[string]types.AttributeValue{
					"pk":         &types.AttributeValueMemberS{Value: key},
					"sk":         &types.AttributeValueMemberS{Value: "CONSTRAINT"},
					"website_id": &types.AttributeValueMemberS{Value: rec.WebsiteID},
					"parent_id":  &types.AttributeValueMemberS{Value: rec.ParentID},
					"slug":       &types.AttributeValueMemberS{Value: rec.Slug},
					"node_id":    &types.AttributeValueMemberS{Value: rec.ID},
				},
				ConditionExpression: aws.String("attribute_not_exists(pk)"),
			},
		})
		kinds = append(kinds, itemSlugClaim)
	}

	releaseKeys := make([]string, 0, len(releases))
	for key := range releases {
		releaseKeys = append(releaseKeys, key)
	}
	sort.Strings(releaseKeys)
	for _, key := range releaseKeys {
		items = append(items, types.TransactWriteItem{
			Delete: &types.Delete{
				TableName: aws.String(t.store.config.ConstraintTable),
				Key:       t.store.constraintKey(key),
			},
		})
		kinds = append(kinds, itemSlugRelease)
	}

	return items, kinds, nil
}

// mapTransactionError translates DynamoDB transaction failures into the
// store's typed errors using the per-item kind tags.
func mapTransactionError(err error, kinds []txItemKind) error {
	if err == nil {
		return nil
	}

	var txErr *types.TransactionCanceledException
	if errors.As(err, &txErr) {
		for i, reason := range txErr.CancellationReasons {
			if reason.Code == nil {
				continue
			}
			switch *reason.Code {
			case "ConditionalCheckFailed":
				if i < len(kinds) {
					switch kinds[i] {
					case itemSlugClaim:
						return ErrSlugTaken
					case itemInsert:
						return ErrAlreadyExists
					}
				}
				// A failed version check means a concurrent commit won.
				return ErrTransactionConflict
			case "TransactionConflict":
				return ErrTransactionConflict
			}
		}
		return ErrTransactionConflict
	}

	var conflictErr *types.TransactionConflictException
	if errors.As(err, &conflictErr) {
		return ErrTransactionConflict
	}

	return err
}
