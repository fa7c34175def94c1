package expression

import (
	"fmt"
	"strings"

	"payloadbuilder/pkg/ordinal"
	"payloadbuilder/pkg/primitives"
	"payloadbuilder/pkg/tuple"
)

// Comparison compares two expressions with the same equality and ordering
// rules that join and group keys use. A nil operand never matches.
type Comparison struct {
	op          primitives.Predicate
	left, right Expression
}

// Compare creates a comparison.
func Compare(op primitives.Predicate, left, right Expression) *Comparison {
	return &Comparison{op: op, left: left, right: right}
}

// Eq is shorthand for an equality comparison.
func Eq(left, right Expression) *Comparison {
	return Compare(primitives.Equals, left, right)
}

// Operands returns the predicate and both sides.
func (c *Comparison) Operands() (primitives.Predicate, Expression, Expression) {
	return c.op, c.left, c.right
}

func (c *Comparison) Eval(ctx Context, t tuple.Tuple) (any, error) {
	l, err := c.left.Eval(ctx, t)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return false, nil
	}
	r, err := c.right.Eval(ctx, t)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return false, nil
	}

	switch c.op {
	case primitives.Equals:
		return ordinal.EqualValues(l, r), nil
	case primitives.NotEqual:
		return !ordinal.EqualValues(l, r), nil
	default:
		return c.op.Matches(ordinal.CompareValues(l, r)), nil
	}
}

func (c *Comparison) String() string {
	return fmt.Sprintf("%s %s %s", c.left, c.op, c.right)
}

// And is true when every term is true. Evaluation stops at the first term
// that is not.
type And struct {
	terms []Expression
}

// All creates a conjunction.
func All(terms ...Expression) *And {
	return &And{terms: terms}
}

func (a *And) Eval(ctx Context, t tuple.Tuple) (any, error) {
	for _, term := range a.terms {
		ok, err := EvalPredicate(ctx, term, t)
		if err != nil {
			return nil, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (a *And) String() string {
	parts := make([]string, len(a.terms))
	for i, term := range a.terms {
		parts[i] = term.String()
	}
	return strings.Join(parts, " AND ")
}
