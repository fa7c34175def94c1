package tuple

import (
	"slices"

	"payloadbuilder/pkg/primitives"
)

// CollectionTuple is a sequence of tuples from the same source ordinal. It is
// produced by populating joins (the inner matches of one outer row) and by
// group by (the members of one group).
//
// Reading a column returns either a single value, delegated to the first
// member, or a ValueSequence with one value per member. Collections built by a
// populating join are single-valued on every column. Grouped collections are
// single-valued on the group key columns and streamed on every other column so
// that aggregate functions can fold them.
type CollectionTuple struct {
	ordinal    primitives.TupleOrdinal
	members    []Tuple
	grouped    bool
	keyColumns map[int]struct{}
	// sourceKeys are the key columns of the sources inside composite members.
	sourceKeys map[primitives.TupleOrdinal][]int
}

// NewCollection creates a populated collection holding first.
func NewCollection(ordinal primitives.TupleOrdinal, first Tuple) *CollectionTuple {
	c := &CollectionTuple{ordinal: ordinal}
	if first != nil {
		c.members = []Tuple{first}
	}
	return c
}

// NewGroupedCollection creates a group with the given members. keyColumns are
// the column ordinals that are identical across members.
func NewGroupedCollection(ordinal primitives.TupleOrdinal, members []Tuple, keyColumns []int) *CollectionTuple {
	keys := make(map[int]struct{}, len(keyColumns))
	for _, k := range keyColumns {
		keys[k] = struct{}{}
	}
	return &CollectionTuple{
		ordinal:    ordinal,
		members:    members,
		grouped:    true,
		keyColumns: keys,
	}
}

// WithSourceKeys records the single-valued columns of the source ordinal
// inside the members, for groups of composite rows. It returns c.
func (c *CollectionTuple) WithSourceKeys(ordinal primitives.TupleOrdinal, columns []int) *CollectionTuple {
	if c.sourceKeys == nil {
		c.sourceKeys = make(map[primitives.TupleOrdinal][]int)
	}
	c.sourceKeys[ordinal] = append(c.sourceKeys[ordinal], columns...)
	return c
}

// Add appends a member.
func (c *CollectionTuple) Add(t Tuple) {
	c.members = append(c.members, t)
}

// Len returns the number of members.
func (c *CollectionTuple) Len() int {
	return len(c.members)
}

// Members returns the member tuples.
func (c *CollectionTuple) Members() []Tuple {
	return c.members
}

// Rows returns every member of this branch as a lazy sequence.
func (c *CollectionTuple) Rows() TupleSequence {
	return TupleSequence{members: c.members}
}

// Grouped reports whether the collection was built by group by.
func (c *CollectionTuple) Grouped() bool {
	return c.grouped
}

// KeyColumns returns the single-valued columns of a group in ascending order.
func (c *CollectionTuple) KeyColumns() []int {
	keys := make([]int, 0, len(c.keyColumns))
	for k := range c.keyColumns {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// SourceKeys returns the key columns recorded with WithSourceKeys.
func (c *CollectionTuple) SourceKeys() map[primitives.TupleOrdinal][]int {
	return c.sourceKeys
}

// IsStreamed reports whether column i yields one value per member.
func (c *CollectionTuple) IsStreamed(i int) bool {
	if !c.grouped {
		return false
	}
	_, single := c.keyColumns[i]
	return !single
}

func (c *CollectionTuple) TupleOrdinal() primitives.TupleOrdinal {
	return c.ordinal
}

// SubTuple of a populated collection delegates to its first member. A group
// returns a group of the sub tuples of its members, so columns of a source
// inside composite members stream like the columns of the group itself.
func (c *CollectionTuple) SubTuple(ordinal primitives.TupleOrdinal) Tuple {
	if c.ordinal == ordinal {
		return c
	}
	if len(c.members) == 0 {
		return nil
	}
	if !c.grouped {
		return c.members[0].SubTuple(ordinal)
	}
	if c.members[0].SubTuple(ordinal) == nil {
		return nil
	}
	members := make([]Tuple, 0, len(c.members))
	for _, m := range c.members {
		if sub := m.SubTuple(ordinal); sub != nil {
			members = append(members, sub)
		}
	}
	return NewGroupedCollection(ordinal, members, c.sourceKeys[ordinal])
}

func (c *CollectionTuple) ColumnCount() int {
	if len(c.members) == 0 {
		return 0
	}
	return c.members[0].ColumnCount()
}

func (c *CollectionTuple) ColumnName(i int) string {
	if len(c.members) == 0 {
		return ""
	}
	return c.members[0].ColumnName(i)
}

func (c *CollectionTuple) ColumnOrdinal(name string) int {
	if len(c.members) == 0 {
		return -1
	}
	return c.members[0].ColumnOrdinal(name)
}

func (c *CollectionTuple) Value(i int) any {
	if len(c.members) == 0 {
		return nil
	}
	if c.IsStreamed(i) {
		return ValueSequence{members: c.members, column: i}
	}
	return c.members[0].Value(i)
}

func (c *CollectionTuple) QualifiedValue(name QualifiedName, partIndex int) any {
	if len(c.members) == 0 || partIndex < 0 || partIndex >= len(name.Parts) {
		return nil
	}
	ordinal := c.ColumnOrdinal(name.Parts[partIndex])
	if ordinal < 0 {
		return nil
	}
	if !c.IsStreamed(ordinal) {
		return c.members[0].QualifiedValue(name, partIndex)
	}
	if partIndex == len(name.Parts)-1 {
		return ValueSequence{members: c.members, column: ordinal}
	}
	values := make([]any, len(c.members))
	for i, m := range c.members {
		values[i] = m.QualifiedValue(name, partIndex)
	}
	return ValueSequence{values: values}
}

func (c *CollectionTuple) String() string {
	return Format(c)
}
