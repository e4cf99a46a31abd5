// Package tree maintains a website's page hierarchy as a materialized-path
// tree over a transactional store.
//
// Each node carries its parent reference plus two derived fields - FullPath
// (the parent's path joined with the node's slug) and PathDepth - that the
// engine keeps consistent with the actual parent chain after every committed
// operation. Slugs are unique case-insensitively within a sibling scope, and
// sibling order is an integer position.
//
// # Service
//
// [Service] is the primary surface: create, update, delete, move, bulk
// writes, sibling reordering, tree projections, and structural audit/repair.
// Every mutating operation runs inside exactly one serializable transaction
// provided by the [store.Store]; bulk operations are all-or-nothing. Reads
// are non-transactional and may observe a slightly stale snapshot.
//
// Moving a node re-parents its whole subtree: descendants are recalculated
// strictly in ascending-depth order inside the same transaction, so each new
// path derives from an already-updated ancestor.
//
// # Slugs
//
// [SlugValidator] enforces and suggests slugs. Pattern rules, reserved words
// and the suffix-probing attempt budget are injected via [SlugConfig] rather
// than hard-coded.
//
// # Errors
//
//   - [*ValidationError] - malformed, empty or reserved slug; bad input
//   - [*ConflictError] - slug uniqueness violation, carries a suggestion
//   - [ErrCircularReference] - move would create a cycle
//   - [ErrNotFound], [ErrParentNotFound] - missing node or parent
//   - [ErrTransactionConflict] - serialization failure, safe to retry
//
// Structural inconsistencies found by ValidateTree/ValidatePaths are
// reported as [IntegrityError] values inside a [ValidationResult], not
// returned as errors.
package tree
