package scan

import (
	"fmt"

	"payloadbuilder/pkg/execution"
	"payloadbuilder/pkg/expression"
	"payloadbuilder/pkg/primitives"
	"payloadbuilder/pkg/tuple"
)

// Filter passes through the rows of its child that satisfy a predicate.
type Filter struct {
	id        primitives.NodeID
	predicate expression.Expression
	child     execution.Operator
}

// NewFilter creates a filter over child.
func NewFilter(id primitives.NodeID, predicate expression.Expression, child execution.Operator) (*Filter, error) {
	if predicate == nil {
		return nil, fmt.Errorf("predicate cannot be nil")
	}
	if child == nil {
		return nil, fmt.Errorf("child operator cannot be nil")
	}
	return &Filter{id: id, predicate: predicate, child: child}, nil
}

func (f *Filter) NodeID() primitives.NodeID      { return f.id }
func (f *Filter) Kind() execution.OperatorKind   { return execution.KindFilter }
func (f *Filter) Children() []execution.Operator { return []execution.Operator{f.child} }
func (f *Filter) Describe() string               { return f.predicate.String() }

func (f *Filter) Open(ctx *execution.ExecutionContext) (execution.TupleIterator, error) {
	// Open our child first - data flows from child to us
	child, err := execution.Open(ctx, f.child)
	if err != nil {
		return nil, fmt.Errorf("failed to open child operator: %w", err)
	}

	return execution.NewBaseIterator(func() (tuple.Tuple, error) {
		for {
			t, err := execution.Fetch(child)
			if err != nil {
				return nil, err
			}
			if t == nil {
				return nil, nil // This signals "no more tuples"
			}

			passes, err := expression.EvalPredicate(ctx, f.predicate, t)
			if err != nil {
				return nil, err
			}
			if passes {
				return t, nil
			}
		}
	}, child.Close), nil
}
