package expression

import (
	"fmt"

	"payloadbuilder/pkg/primitives"
	"payloadbuilder/pkg/tuple"
)

// Column references a column of the tuple produced by a specific source.
//
// The source is located with SubTuple, first in the evaluated tuple and then
// in the correlated outer tuple, so a column keeps resolving no matter how
// many joins wrap the row it belongs to. A column with NoTupleOrdinal reads
// straight from the evaluated tuple.
type Column struct {
	ordinal primitives.TupleOrdinal
	path    tuple.QualifiedName
}

// Col creates a column reference. path may be dotted to walk into nested map
// values ("attributes.color").
func Col(ordinal primitives.TupleOrdinal, path string) *Column {
	return &Column{ordinal: ordinal, path: tuple.ParseQualifiedName(path)}
}

// AnyCol creates a column reference that is not bound to a source.
func AnyCol(path string) *Column {
	return Col(primitives.NoTupleOrdinal, path)
}

// TupleOrdinal returns the source the column is bound to.
func (c *Column) TupleOrdinal() primitives.TupleOrdinal {
	return c.ordinal
}

// Path returns the qualified column path.
func (c *Column) Path() tuple.QualifiedName {
	return c.path
}

// ColumnName returns the column name when the reference is a plain,
// non-nested column.
func (c *Column) ColumnName() (string, bool) {
	if c.path.Len() != 1 {
		return "", false
	}
	return c.path.Parts[0], true
}

func (c *Column) Eval(ctx Context, t tuple.Tuple) (any, error) {
	target := c.resolve(ctx, t)
	if target == nil {
		return nil, nil
	}
	return target.QualifiedValue(c.path, 0), nil
}

func (c *Column) resolve(ctx Context, t tuple.Tuple) tuple.Tuple {
	if c.ordinal == primitives.NoTupleOrdinal {
		return t
	}
	if t != nil {
		if sub := t.SubTuple(c.ordinal); sub != nil {
			return sub
		}
	}
	if ctx != nil {
		if outer := ctx.OuterTuple(); outer != nil {
			return outer.SubTuple(c.ordinal)
		}
	}
	return nil
}

func (c *Column) String() string {
	if c.ordinal == primitives.NoTupleOrdinal {
		return c.path.String()
	}
	return fmt.Sprintf("#%d.%s", c.ordinal, c.path)
}

// AllRows evaluates to the TupleSequence of every row a source contributed to
// the tuple. For a populated collection that is all of its members; for a
// plain row it is the row itself.
type AllRows struct {
	ordinal primitives.TupleOrdinal
}

// Rows creates an all-rows reference for a source.
func Rows(ordinal primitives.TupleOrdinal) *AllRows {
	return &AllRows{ordinal: ordinal}
}

func (a *AllRows) Eval(_ Context, t tuple.Tuple) (any, error) {
	if t == nil {
		return nil, nil
	}
	sub := t.SubTuple(a.ordinal)
	switch s := sub.(type) {
	case nil:
		return nil, nil
	case *tuple.CollectionTuple:
		return s.Rows(), nil
	default:
		return tuple.NewTupleSequence([]tuple.Tuple{s}), nil
	}
}

func (a *AllRows) String() string {
	return fmt.Sprintf("#%d.*", a.ordinal)
}
