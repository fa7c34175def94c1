package tuple

import (
	"payloadbuilder/pkg/primitives"
)

// CompositeTuple is the result of a flattening join: an ordered, flat list of
// member tuples. Appending another composite unwraps it, so the depth of a
// composite equals the number of joins that produced it rather than the depth
// of the operator tree.
//
// A composite is owned by the join that builds it. Once returned downstream it
// must not be modified.
type CompositeTuple struct {
	members []Tuple
}

// NewComposite creates an empty composite with room for capacity members.
func NewComposite(capacity int) *CompositeTuple {
	return &CompositeTuple{members: make([]Tuple, 0, capacity)}
}

// Compose builds a new composite holding outer followed by inner, flattening
// either side if it is itself a composite. Neither argument is modified.
func Compose(outer, inner Tuple) *CompositeTuple {
	c := NewComposite(memberCount(outer) + memberCount(inner))
	c.Append(outer)
	c.Append(inner)
	return c
}

func memberCount(t Tuple) int {
	if c, ok := t.(*CompositeTuple); ok {
		return len(c.members)
	}
	return 1
}

// Append adds t to the end of the composite, unwrapping composites.
func (c *CompositeTuple) Append(t Tuple) {
	if t == nil {
		return
	}
	if other, ok := t.(*CompositeTuple); ok {
		c.members = append(c.members, other.members...)
		return
	}
	c.members = append(c.members, t)
}

// AppendPopulated adds inner to the collection stored under ordinal. When the
// last member already is that collection the inner tuple is added to it,
// otherwise a new collection is appended. This is the only in-place update a
// populating join performs on a composite it owns.
func (c *CompositeTuple) AppendPopulated(ordinal primitives.TupleOrdinal, inner Tuple) {
	if n := len(c.members); n > 0 {
		if coll, ok := c.members[n-1].(*CollectionTuple); ok && coll.ordinal == ordinal && !coll.grouped {
			coll.Add(inner)
			return
		}
	}
	c.members = append(c.members, NewCollection(ordinal, inner))
}

// Copy returns a shallow copy whose member list can be appended to without
// affecting c.
func (c *CompositeTuple) Copy() *CompositeTuple {
	members := make([]Tuple, len(c.members), len(c.members)+1)
	copy(members, c.members)
	return &CompositeTuple{members: members}
}

// Members returns the flattened member tuples.
func (c *CompositeTuple) Members() []Tuple {
	return c.members
}

// Len returns the number of members.
func (c *CompositeTuple) Len() int {
	return len(c.members)
}

func (c *CompositeTuple) TupleOrdinal() primitives.TupleOrdinal {
	return primitives.NoTupleOrdinal
}

// SubTuple searches the members from the back so that the most recently
// joined source wins.
func (c *CompositeTuple) SubTuple(ordinal primitives.TupleOrdinal) Tuple {
	for i := len(c.members) - 1; i >= 0; i-- {
		if t := c.members[i].SubTuple(ordinal); t != nil {
			return t
		}
	}
	return nil
}

func (c *CompositeTuple) ColumnCount() int {
	count := 0
	for _, m := range c.members {
		count += m.ColumnCount()
	}
	return count
}

func (c *CompositeTuple) ColumnName(i int) string {
	m, local := c.locate(i)
	if m == nil {
		return ""
	}
	return m.ColumnName(local)
}

func (c *CompositeTuple) ColumnOrdinal(name string) int {
	offset := 0
	for _, m := range c.members {
		if o := m.ColumnOrdinal(name); o >= 0 {
			return offset + o
		}
		offset += m.ColumnCount()
	}
	return -1
}

func (c *CompositeTuple) Value(i int) any {
	m, local := c.locate(i)
	if m == nil {
		return nil
	}
	return m.Value(local)
}

func (c *CompositeTuple) QualifiedValue(name QualifiedName, partIndex int) any {
	if partIndex < 0 || partIndex >= len(name.Parts) {
		return nil
	}
	for _, m := range c.members {
		if m.ColumnOrdinal(name.Parts[partIndex]) >= 0 {
			return m.QualifiedValue(name, partIndex)
		}
	}
	return nil
}

func (c *CompositeTuple) String() string {
	return Format(c)
}

// locate maps a column ordinal of the concatenated view to a member and the
// ordinal within that member.
func (c *CompositeTuple) locate(i int) (Tuple, int) {
	if i < 0 {
		return nil, 0
	}
	for _, m := range c.members {
		n := m.ColumnCount()
		if i < n {
			return m, i
		}
		i -= n
	}
	return nil, 0
}
