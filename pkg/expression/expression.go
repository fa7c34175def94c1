// Package expression holds the evaluator contract the execution engine is
// driven by and a small set of concrete evaluators. Expressions are opaque to
// the operators: predicates, hash keys, batch sizes and cache keys are all
// plain expressions that may fail.
package expression

import (
	"payloadbuilder/pkg/tuple"
)

// Context is what an expression can see besides the tuple it is evaluated
// against.
type Context interface {
	// OuterTuple returns the outer row of a correlated sub query, or nil.
	OuterTuple() tuple.Tuple

	// Variable returns the value of a query variable, or nil when unset.
	Variable(name string) any
}

// Expression evaluates to a value for a tuple. t may be nil for expressions
// that are evaluated once per operator (batch size, cache name, TTL).
type Expression interface {
	Eval(ctx Context, t tuple.Tuple) (any, error)
	String() string
}

// StaticContext is a Context backed by plain fields.
type StaticContext struct {
	Outer     tuple.Tuple
	Variables map[string]any
}

func (c StaticContext) OuterTuple() tuple.Tuple {
	return c.Outer
}

func (c StaticContext) Variable(name string) any {
	return c.Variables[name]
}

// IsTrue reports whether v is the boolean true. Nil and every non boolean
// value are false.
func IsTrue(v any) bool {
	b, ok := v.(bool)
	return ok && b
}

// EvalPredicate evaluates expr and reports whether it produced true.
func EvalPredicate(ctx Context, expr Expression, t tuple.Tuple) (bool, error) {
	if expr == nil {
		return true, nil
	}
	v, err := expr.Eval(ctx, t)
	if err != nil {
		return false, err
	}
	return IsTrue(v), nil
}
