package join

import (
	"errors"
	"fmt"

	"payloadbuilder/pkg/dberror"
	"payloadbuilder/pkg/execution"
	"payloadbuilder/pkg/expression"
	"payloadbuilder/pkg/ordinal"
	"payloadbuilder/pkg/primitives"
	"payloadbuilder/pkg/tuple"
)

// NestedLoopOptions tune how the inner branch is opened per outer row.
type NestedLoopOptions struct {
	// Correlated publishes the current outer row as the context outer tuple
	// while the inner branch runs (cross/outer apply).
	Correlated bool

	// OuterValues, when set, publishes the key of the current outer row to
	// an index-capable inner branch.
	OuterValues *expression.OrdinalValuesFactory

	// InnerCacheID is the node id of the InnerCache wrapped around an
	// uncorrelated inner branch. It must be unique within the plan: it may
	// not equal the id of the join or of any node below it.
	InnerCacheID primitives.NodeID
}

// NestedLoop evaluates the predicate for every outer and inner pair.
type NestedLoop struct {
	id    primitives.NodeID
	spec  Spec
	opts  NestedLoopOptions
	inner execution.Operator
}

// NewNestedLoop creates a nested loop join. An inner branch that depends on
// neither the outer row nor its values is wrapped in an InnerCache so it only
// runs once per statement.
func NewNestedLoop(id primitives.NodeID, spec Spec, opts NestedLoopOptions) (*NestedLoop, error) {
	if err := spec.validate(); err != nil {
		return nil, fmt.Errorf("nested loop #%d: %w", id, err)
	}

	inner := spec.Inner
	if _, cached := inner.(*InnerCache); !cached && !opts.Correlated && opts.OuterValues == nil {
		used := nodeIDs(spec.Outer, spec.Inner)
		if opts.InnerCacheID == id || used[opts.InnerCacheID] || used[id] {
			return nil, dberror.Configuration(dberror.CodeInvalidConfig, fmt.Sprintf("%s#%d", execution.KindNestedLoop, id),
				"inner cache id %d or join id %d is already used in the plan", opts.InnerCacheID, id).
				WithHint("give the inner cache of every uncorrelated nested loop its own node id")
		}
		inner = NewInnerCache(opts.InnerCacheID, inner)
	}
	return &NestedLoop{id: id, spec: spec, opts: opts, inner: inner}, nil
}

// nodeIDs returns the node ids used by the given trees.
func nodeIDs(trees ...execution.Operator) map[primitives.NodeID]bool {
	ids := make(map[primitives.NodeID]bool)
	for _, tree := range trees {
		execution.Walk(tree, func(op execution.Operator, _ int) bool {
			ids[op.NodeID()] = true
			return true
		})
	}
	return ids
}

func (n *NestedLoop) NodeID() primitives.NodeID    { return n.id }
func (n *NestedLoop) Kind() execution.OperatorKind { return execution.KindNestedLoop }
func (n *NestedLoop) Children() []execution.Operator {
	return []execution.Operator{n.spec.Outer, n.inner}
}

func (n *NestedLoop) Describe() string {
	d := n.spec.describe()
	if n.opts.Correlated {
		d += " correlated"
	}
	return d
}

func (n *NestedLoop) Open(ctx *execution.ExecutionContext) (execution.TupleIterator, error) {
	outer, err := execution.Open(ctx, n.spec.Outer)
	if err != nil {
		return nil, err
	}
	it := &nestedLoopIterator{join: n, ctx: ctx, outer: outer, m: newMatcher(ctx, &n.spec)}
	return execution.NewBaseIterator(it.readNext, it.close), nil
}

type nestedLoopIterator struct {
	join  *NestedLoop
	ctx   *execution.ExecutionContext
	outer execution.TupleIterator
	m     *matcher

	current     *outerHolder
	inner       execution.TupleIterator
	outerValues *execution.OuterValuesIterator
	prevOuter   tuple.Tuple
}

func (it *nestedLoopIterator) readNext() (tuple.Tuple, error) {
	for {
		if it.inner != nil {
			for {
				t, err := execution.Fetch(it.inner)
				if err != nil {
					return nil, err
				}
				if t == nil {
					break
				}
				out, err := it.m.test(it.current, t)
				if err != nil {
					return nil, err
				}
				if out != nil {
					return out, nil
				}
			}

			if err := it.closeInner(true); err != nil {
				return nil, err
			}
			h := it.current
			it.current = nil
			if out := it.m.finish(h); out != nil {
				return out, nil
			}
		}

		t, err := execution.Fetch(it.outer)
		if err != nil || t == nil {
			return nil, err
		}
		if err := it.openInner(t); err != nil {
			return nil, err
		}
	}
}

func (it *nestedLoopIterator) openInner(outer tuple.Tuple) error {
	it.current = &outerHolder{tuple: outer}

	if it.join.opts.Correlated {
		it.prevOuter = it.ctx.SetOuterTuple(outer)
	}
	if f := it.join.opts.OuterValues; f != nil {
		key, err := f.Create(it.ctx, outer)
		if err != nil {
			return err
		}
		it.outerValues = execution.NewOuterValues([]ordinal.Values{key})
		it.ctx.SetOuterValues(it.outerValues)
	}

	inner, err := execution.Open(it.ctx, it.join.inner)
	if err != nil {
		it.restore()
		return err
	}
	it.inner = inner
	return nil
}

// closeInner closes the inner iterator of the current outer row. When the
// inner branch was exhausted it also verifies that it consumed the published
// outer values.
func (it *nestedLoopIterator) closeInner(exhausted bool) error {
	err := it.inner.Close()
	it.inner = nil

	if exhausted && it.outerValues != nil && it.outerValues.HasNext() {
		err = errors.Join(err, dberror.ContractViolation(dberror.CodeOuterValuesNotConsumed,
			execution.Component(it.join), "inner branch consumed %d of %d outer values",
			it.outerValues.Len()-it.outerValues.Remaining(), it.outerValues.Len()))
	}
	it.restore()
	return err
}

func (it *nestedLoopIterator) restore() {
	if it.join.opts.Correlated {
		it.ctx.SetOuterTuple(it.prevOuter)
		it.prevOuter = nil
	}
	if it.outerValues != nil {
		it.ctx.ClearOuterValues()
		it.outerValues = nil
	}
}

func (it *nestedLoopIterator) close() error {
	var err error
	if it.inner != nil {
		err = it.closeInner(false)
	}
	return errors.Join(err, it.outer.Close())
}
