package tuple

import (
	"payloadbuilder/pkg/primitives"
)

// JoinTuple is the scratch tuple a join evaluates its predicate against.
// It is re-pointed for every candidate pair instead of allocating a composite
// per probe, so it must never be retained past the call that set it.
//
// Lookups by ordinal check the inner tuple first, then the outer tuple and
// finally the context outer tuple of a correlated sub query.
type JoinTuple struct {
	ContextOuter Tuple
	Outer        Tuple
	Inner        Tuple
}

// Set points the scratch tuple at a candidate pair.
func (j *JoinTuple) Set(outer, inner Tuple) {
	j.Outer = outer
	j.Inner = inner
}

func (j *JoinTuple) TupleOrdinal() primitives.TupleOrdinal {
	return primitives.NoTupleOrdinal
}

func (j *JoinTuple) SubTuple(ordinal primitives.TupleOrdinal) Tuple {
	for _, t := range [...]Tuple{j.Inner, j.Outer, j.ContextOuter} {
		if t == nil {
			continue
		}
		if sub := t.SubTuple(ordinal); sub != nil {
			return sub
		}
	}
	return nil
}

func (j *JoinTuple) ColumnCount() int {
	return count(j.Outer) + count(j.Inner)
}

func (j *JoinTuple) ColumnName(i int) string {
	if n := count(j.Outer); i < n {
		return j.Outer.ColumnName(i)
	} else if j.Inner != nil {
		return j.Inner.ColumnName(i - n)
	}
	return ""
}

func (j *JoinTuple) ColumnOrdinal(name string) int {
	if j.Outer != nil {
		if o := j.Outer.ColumnOrdinal(name); o >= 0 {
			return o
		}
	}
	if j.Inner != nil {
		if o := j.Inner.ColumnOrdinal(name); o >= 0 {
			return count(j.Outer) + o
		}
	}
	return -1
}

func (j *JoinTuple) Value(i int) any {
	if n := count(j.Outer); i < n {
		return j.Outer.Value(i)
	} else if j.Inner != nil {
		return j.Inner.Value(i - n)
	}
	return nil
}

func (j *JoinTuple) QualifiedValue(name QualifiedName, partIndex int) any {
	return resolveColumn(j, name, partIndex)
}

func count(t Tuple) int {
	if t == nil {
		return 0
	}
	return t.ColumnCount()
}
