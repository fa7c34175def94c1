package join

import (
	"payloadbuilder/pkg/execution"
	"payloadbuilder/pkg/primitives"
	"payloadbuilder/pkg/tuple"
)

// InnerCache materializes a non correlated inner branch the first time it is
// opened and replays the rows on every later open within the statement.
// Parallel workers share the materialization through the node's shared state.
//
// Below a correlated apply the branch may read the context outer tuple, so
// while one is set the branch runs on every open instead.
type InnerCache struct {
	id    primitives.NodeID
	inner execution.Operator
}

// NewInnerCache wraps inner.
func NewInnerCache(id primitives.NodeID, inner execution.Operator) *InnerCache {
	return &InnerCache{id: id, inner: inner}
}

func (c *InnerCache) NodeID() primitives.NodeID      { return c.id }
func (c *InnerCache) Kind() execution.OperatorKind   { return execution.KindInnerCache }
func (c *InnerCache) Children() []execution.Operator { return []execution.Operator{c.inner} }
func (c *InnerCache) Describe() string               { return "materialize once" }

func (c *InnerCache) Open(ctx *execution.ExecutionContext) (execution.TupleIterator, error) {
	if ctx.OuterTuple() != nil {
		return execution.Open(ctx, c.inner)
	}
	v, err := ctx.Slot(c.id).Shared().LoadOrInit(func() (any, error) {
		rows, err := execution.Drain(ctx, c.inner)
		if err != nil {
			return nil, err
		}
		ctx.NodeLogger(c).Debug("inner branch materialized", "rows", len(rows))
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	return execution.NewSliceIterator(v.([]tuple.Tuple)), nil
}
