package expression

import (
	"fmt"
	"strings"

	"payloadbuilder/pkg/tuple"
	"payloadbuilder/pkg/types"
)

// FuncImpl is the body of a scalar function.
type FuncImpl func(args []any) (any, error)

// Func applies a named function to its evaluated arguments.
type Func struct {
	name string
	impl FuncImpl
	args []Expression
}

// Call creates a function call.
func Call(name string, impl FuncImpl, args ...Expression) *Func {
	return &Func{name: name, impl: impl, args: args}
}

func (f *Func) Eval(ctx Context, t tuple.Tuple) (any, error) {
	values := make([]any, len(f.args))
	for i, arg := range f.args {
		v, err := arg.Eval(ctx, t)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	v, err := f.impl(values)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.name, err)
	}
	return v, nil
}

func (f *Func) String() string {
	args := make([]string, len(f.args))
	for i, a := range f.args {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", f.name, strings.Join(args, ", "))
}

// Sum folds a streamed column of a grouped tuple. A scalar argument is
// returned as is; nil members are skipped.
func Sum(arg Expression) *Func {
	return Call("sum", func(args []any) (any, error) {
		seq, ok := args[0].(tuple.ValueSequence)
		if !ok {
			return args[0], nil
		}

		var (
			isum    int64
			fsum    float64
			integer = true
		)
		for i := 0; i < seq.Len(); i++ {
			v := seq.At(i)
			if v == nil {
				continue
			}
			if n, ok := types.AsInt64(v); ok {
				isum += n
				fsum += float64(n)
				continue
			}
			f, ok := types.AsFloat64(v)
			if !ok {
				return nil, fmt.Errorf("cannot sum %T", v)
			}
			fsum += f
			integer = false
		}
		if integer {
			return isum, nil
		}
		return fsum, nil
	}, arg)
}

// Count returns the number of members of a streamed column, 1 for a scalar
// and 0 for nil.
func Count(arg Expression) *Func {
	return Call("count", func(args []any) (any, error) {
		switch v := args[0].(type) {
		case nil:
			return int64(0), nil
		case tuple.ValueSequence:
			return int64(v.Len()), nil
		case tuple.TupleSequence:
			return int64(v.Len()), nil
		default:
			return int64(1), nil
		}
	}, arg)
}
