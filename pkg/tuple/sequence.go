package tuple

// ValueSequence is the streamed view of one column across the members of a
// collection. Values are read lazily from the members.
type ValueSequence struct {
	members []Tuple
	column  int
	values  []any
}

// NewValueSequence wraps already materialized values.
func NewValueSequence(values []any) ValueSequence {
	return ValueSequence{values: values}
}

// Len returns the number of values.
func (s ValueSequence) Len() int {
	if s.values != nil {
		return len(s.values)
	}
	return len(s.members)
}

// At returns the ith value.
func (s ValueSequence) At(i int) any {
	if s.values != nil {
		return s.values[i]
	}
	return s.members[i].Value(s.column)
}

// Values materializes the sequence.
func (s ValueSequence) Values() []any {
	out := make([]any, s.Len())
	for i := range out {
		out[i] = s.At(i)
	}
	return out
}

// TupleSequence is the "all rows of this branch" view of a collection.
type TupleSequence struct {
	members []Tuple
}

// NewTupleSequence wraps a tuple slice.
func NewTupleSequence(members []Tuple) TupleSequence {
	return TupleSequence{members: members}
}

// Len returns the number of tuples.
func (s TupleSequence) Len() int {
	return len(s.members)
}

// At returns the ith tuple.
func (s TupleSequence) At(i int) Tuple {
	return s.members[i]
}

// Tuples returns the underlying tuples. Callers must not modify the slice.
func (s TupleSequence) Tuples() []Tuple {
	return s.members
}
