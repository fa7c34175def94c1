package expression

import (
	"fmt"
	"strconv"

	"payloadbuilder/pkg/tuple"
)

// Literal is a constant.
type Literal struct {
	value any
}

// Lit creates a literal.
func Lit(v any) *Literal {
	return &Literal{value: v}
}

func (l *Literal) Eval(Context, tuple.Tuple) (any, error) {
	return l.value, nil
}

func (l *Literal) String() string {
	switch v := l.value.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(v)
	default:
		return fmt.Sprint(v)
	}
}

// Variable reads a query variable from the context.
type Variable struct {
	name string
}

// Var creates a variable reference.
func Var(name string) *Variable {
	return &Variable{name: name}
}

func (v *Variable) Eval(ctx Context, _ tuple.Tuple) (any, error) {
	if ctx == nil {
		return nil, nil
	}
	return ctx.Variable(v.name), nil
}

func (v *Variable) String() string {
	return "@" + v.name
}
