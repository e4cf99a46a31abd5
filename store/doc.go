// Package store provides the transactional persistence boundary for the
// arbor site-structure tree.
//
// Every node of a website's page hierarchy is persisted as a flat [Record]
// keyed by id. The tree itself is never stored as a nested structure; the
// tree packages assemble transient projections from these flat rows.
//
// # Transactions
//
// All mutations go through [Store.WithTransaction]. The callback receives a
// [Txn] with read-your-writes semantics; either every staged write commits
// or none does. Serialization failures surface as the retryable
// [ErrTransactionConflict].
//
// Two implementations are provided:
//
//   - [MemoryStore] - an in-process store serializing transactions under a
//     single mutex. Intended for tests and embedded use.
//   - [DynamoStore] - a DynamoDB-backed store using optimistic concurrency:
//     the transaction records the version of every row it reads, buffers
//     writes, and commits with a single TransactWriteItems call whose
//     condition checks reject the commit if any observed row changed.
//
// # Slug constraints
//
// Case-insensitive slug uniqueness within a sibling scope is enforced by the
// store, not by check-then-act logic above it. [DynamoStore] claims a
// constraint record per (websiteID, parentID, lower(slug)) with an
// attribute_not_exists condition, so concurrent creates of the same slug
// cannot both commit even when neither transaction read the other's rows.
//
// # Errors
//
//   - [ErrNotFound] - node doesn't exist
//   - [ErrAlreadyExists] - insert with an existing id
//   - [ErrSlugTaken] - slug constraint violated
//   - [ErrTransactionConflict] - serialization failure, safe to retry
//   - [ErrTransactionTooLarge] - transaction exceeds the backend's item limit
package store
