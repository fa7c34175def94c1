// Package execution is the root of the join execution engine.
//
// The engine uses the iterator (volcano) model: every operator is a stateless
// factory whose Open returns a TupleIterator. Operators are composed into a
// tree; pulling from the root pulls one row at a time through the entire
// pipeline. All per-execution state lives either in the iterators or in the
// node slots of the ExecutionContext, so a plan can be re-opened (for a
// correlated sub query, or by parallel workers) without interference.
//
// # Sub-packages
//
//   - [payloadbuilder/pkg/execution/scan]        – in-memory tables, table and
//     index scans, filter, literal rows and the batch source of parallel plans.
//   - [payloadbuilder/pkg/execution/join]        – nested loop, hash,
//     batch-hash and batch-merge joins.
//   - [payloadbuilder/pkg/execution/aggregation] – group by.
//   - [payloadbuilder/pkg/execution/cache]       – read-through batch cache
//     between a batch join and its inner branch.
//   - [payloadbuilder/pkg/execution/parallel]    – batch parallelism.
//
// # Outer values
//
// Batch joins publish the distinct key vectors of the current batch through
// ExecutionContext.SetOuterValues before opening their inner branch. An index
// capable operator in that branch must consume every vector; the join checks
// this after the inner iterator is exhausted.
package execution
