package expression

import (
	"payloadbuilder/pkg/ordinal"
	"payloadbuilder/pkg/tuple"
)

// OrdinalValuesFactory extracts ordinal values from a tuple. Joins use one per
// side to build hash keys, group by uses one for its grouping key and the
// batch cache uses one to key the rows of its inner branch.
type OrdinalValuesFactory struct {
	expressions []Expression
}

// NewOrdinalValuesFactory creates a factory extracting one value per expression.
func NewOrdinalValuesFactory(expressions ...Expression) *OrdinalValuesFactory {
	return &OrdinalValuesFactory{expressions: expressions}
}

// Create evaluates every expression against t.
func (f *OrdinalValuesFactory) Create(ctx Context, t tuple.Tuple) (ordinal.Values, error) {
	values := make([]any, len(f.expressions))
	for i, e := range f.expressions {
		v, err := e.Eval(ctx, t)
		if err != nil {
			return ordinal.Values{}, err
		}
		values[i] = v
	}
	return ordinal.New(values...), nil
}

// Size returns the number of values each vector holds.
func (f *OrdinalValuesFactory) Size() int {
	return len(f.expressions)
}

// Expressions returns the key expressions.
func (f *OrdinalValuesFactory) Expressions() []Expression {
	return f.expressions
}
