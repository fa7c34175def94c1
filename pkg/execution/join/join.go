// Package join implements the join strategies of the engine.
//
// Every strategy shares the same contract: a residual predicate evaluated
// against a JoinTuple for every candidate pair, a TupleMerger producing the
// result, and the same populating and left (emit empty outer) semantics.
// Strategies only differ in how candidates are found:
//
//   - NestedLoop opens the inner branch once per outer row.
//   - HashJoin drains the outer side into a hash table and streams the inner.
//   - BatchHashJoin pushes the keys of a batch of outer rows down to an
//     index-capable inner branch and hashes the result.
//   - BatchMergeJoin does the same for sorted inputs and merges them.
package join

import (
	"fmt"

	"payloadbuilder/pkg/dberror"
	"payloadbuilder/pkg/execution"
	"payloadbuilder/pkg/expression"
	"payloadbuilder/pkg/primitives"
	"payloadbuilder/pkg/tuple"
)

// Spec is the configuration every join strategy shares.
type Spec struct {
	Outer execution.Operator
	Inner execution.Operator

	// Predicate is the residual join condition. Nil matches every pair a
	// strategy considers: every pair for nested loops, pairs with equal keys
	// for the key based strategies.
	Predicate expression.Expression

	// Populating nests the matching inner rows of an outer row into a
	// collection instead of producing one row per match.
	Populating bool

	// InnerOrdinal is the tuple ordinal of the collection built by a
	// populating join.
	InnerOrdinal primitives.TupleOrdinal

	// EmitEmptyOuter emits outer rows without matches (left join, outer apply).
	EmitEmptyOuter bool

	// Merger combines outer and inner rows. Defaults to DefaultMerger.
	Merger TupleMerger
}

func (s *Spec) validate() error {
	if s.Outer == nil {
		return fmt.Errorf("outer operator cannot be nil")
	}
	if s.Inner == nil {
		return fmt.Errorf("inner operator cannot be nil")
	}
	if s.Merger == nil {
		s.Merger = DefaultMerger{}
	}
	return nil
}

func (s *Spec) describe() string {
	d := "inner"
	if s.EmitEmptyOuter {
		d = "left"
	}
	if s.Populating {
		d += fmt.Sprintf(" populate #%d", s.InnerOrdinal)
	}
	if s.Predicate != nil {
		d += " on " + s.Predicate.String()
	}
	return d
}

// TupleMerger combines an outer and an inner row.
type TupleMerger interface {
	// Merge returns the result of matching outer with inner. For populating
	// joins merged is the result of the previous merge of the same outer row,
	// or nil for its first match. The merger may update merged in place: it
	// is owned by the join until the outer row is emitted.
	Merge(outer, merged, inner tuple.Tuple, populating bool, ordinal primitives.TupleOrdinal) (tuple.Tuple, error)
}

// DefaultMerger flattens non populating matches into a new composite and
// appends populating matches to a collection inside a copy of the outer row.
type DefaultMerger struct{}

func (DefaultMerger) Merge(outer, merged, inner tuple.Tuple, populating bool, ordinal primitives.TupleOrdinal) (tuple.Tuple, error) {
	if !populating {
		return tuple.Compose(outer, inner), nil
	}

	if merged == nil {
		c := tuple.NewComposite(2)
		c.Append(outer)
		c.AppendPopulated(ordinal, inner)
		return c, nil
	}

	c, ok := merged.(*tuple.CompositeTuple)
	if !ok {
		return nil, dberror.ContractViolation(dberror.CodeUnexpectedTuple, "DefaultMerger",
			"populated row must be a composite tuple, got %T", merged)
	}
	c.AppendPopulated(ordinal, inner)
	return c, nil
}

// outerHolder tracks one outer row while its candidates are probed.
type outerHolder struct {
	tuple   tuple.Tuple
	merged  tuple.Tuple
	matched bool
}

// matcher evaluates the residual predicate and merges matches for one join
// iterator. The JoinTuple is reused for every candidate pair and never leaves
// the matcher.
type matcher struct {
	ctx   *execution.ExecutionContext
	spec  *Spec
	probe tuple.JoinTuple
}

func newMatcher(ctx *execution.ExecutionContext, spec *Spec) *matcher {
	return &matcher{ctx: ctx, spec: spec}
}

// test evaluates the predicate for the pair. On a match it marks the holder
// and returns the row to emit, which is nil for populating joins since their
// result is emitted once the outer row is done.
func (m *matcher) test(h *outerHolder, inner tuple.Tuple) (tuple.Tuple, error) {
	m.probe.ContextOuter = m.ctx.OuterTuple()
	m.probe.Set(h.tuple, inner)
	ok, err := expression.EvalPredicate(m.ctx, m.spec.Predicate, &m.probe)
	m.probe.Set(nil, nil)
	if err != nil || !ok {
		return nil, err
	}

	h.matched = true
	if m.spec.Populating {
		h.merged, err = m.spec.Merger.Merge(h.tuple, h.merged, inner, true, m.spec.InnerOrdinal)
		return nil, err
	}
	return m.spec.Merger.Merge(h.tuple, nil, inner, false, m.spec.InnerOrdinal)
}

// finish returns the row to emit once every candidate of h was tested, or nil.
func (m *matcher) finish(h *outerHolder) tuple.Tuple {
	switch {
	case m.spec.Populating && h.matched:
		return h.merged
	case !h.matched && m.spec.EmitEmptyOuter:
		return h.tuple
	default:
		return nil
	}
}
