package execution

import (
	"payloadbuilder/pkg/ordinal"
)

// OuterValues is the channel through which a join hands the distinct key
// vectors of a batch to an index-capable inner operator. The operator must
// consume every vector.
type OuterValues interface {
	HasNext() bool
	Next() ordinal.Values
}

// OuterValuesIterator iterates a fixed list of key vectors.
type OuterValuesIterator struct {
	values []ordinal.Values
	pos    int
}

// NewOuterValues creates an iterator over values.
func NewOuterValues(values []ordinal.Values) *OuterValuesIterator {
	return &OuterValuesIterator{values: values}
}

func (o *OuterValuesIterator) HasNext() bool {
	return o.pos < len(o.values)
}

// Next returns the next vector. It panics when the iterator is exhausted.
func (o *OuterValuesIterator) Next() ordinal.Values {
	v := o.values[o.pos]
	o.pos++
	return v
}

// Len returns the total number of vectors.
func (o *OuterValuesIterator) Len() int {
	return len(o.values)
}

// Remaining returns the number of vectors not consumed yet.
func (o *OuterValuesIterator) Remaining() int {
	return len(o.values) - o.pos
}

// DrainOuterValues consumes every remaining vector of values.
func DrainOuterValues(values OuterValues) []ordinal.Values {
	var out []ordinal.Values
	for values.HasNext() {
		out = append(out, values.Next())
	}
	return out
}
