// Package aggregation groups rows into collection tuples that aggregate
// functions fold downstream.
package aggregation

import (
	"errors"
	"fmt"
	"strings"

	"payloadbuilder/pkg/execution"
	"payloadbuilder/pkg/expression"
	"payloadbuilder/pkg/ordinal"
	"payloadbuilder/pkg/primitives"
	"payloadbuilder/pkg/tuple"
)

// GroupBy drains its input and produces one CollectionTuple per distinct key,
// in the order the keys were first seen. Columns referenced directly by a key
// expression are single valued on the group, every other column is streamed
// over the members.
type GroupBy struct {
	id      primitives.NodeID
	input   execution.Operator
	ordinal primitives.TupleOrdinal
	keys    *expression.OrdinalValuesFactory
}

// NewGroupBy creates a group by over input. The groups carry ordinal, or the
// ordinal of their first member when ordinal is NoTupleOrdinal.
func NewGroupBy(id primitives.NodeID, input execution.Operator, ordinal primitives.TupleOrdinal, keys ...expression.Expression) (*GroupBy, error) {
	if input == nil {
		return nil, fmt.Errorf("group by #%d: input operator cannot be nil", id)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("group by #%d: at least one key expression is required", id)
	}
	return &GroupBy{
		id:      id,
		input:   input,
		ordinal: ordinal,
		keys:    expression.NewOrdinalValuesFactory(keys...),
	}, nil
}

func (g *GroupBy) NodeID() primitives.NodeID      { return g.id }
func (g *GroupBy) Kind() execution.OperatorKind   { return execution.KindGroupBy }
func (g *GroupBy) Children() []execution.Operator { return []execution.Operator{g.input} }

func (g *GroupBy) Describe() string {
	keys := make([]string, 0, g.keys.Size())
	for _, k := range g.keys.Expressions() {
		keys = append(keys, k.String())
	}
	return "by " + strings.Join(keys, ", ")
}

// group holds its first member inline and only allocates a list for the
// second one.
type group struct {
	key   ordinal.Values
	first tuple.Tuple
	rest  []tuple.Tuple
}

func (g *group) add(t tuple.Tuple) {
	g.rest = append(g.rest, t)
}

func (g *group) members() []tuple.Tuple {
	members := make([]tuple.Tuple, 0, 1+len(g.rest))
	members = append(members, g.first)
	return append(members, g.rest...)
}

func (g *GroupBy) Open(ctx *execution.ExecutionContext) (execution.TupleIterator, error) {
	input, err := execution.Open(ctx, g.input)
	if err != nil {
		return nil, err
	}

	table := make(map[primitives.HashCode][]*group)
	var order []*group
	err = execution.ForEach(input, func(t tuple.Tuple) error {
		key, err := g.keys.Create(ctx, t)
		if err != nil {
			return err
		}
		hash := key.Hash()
		for _, existing := range table[hash] {
			if existing.key.Equal(key) {
				existing.add(t)
				return nil
			}
		}
		created := &group{key: key, first: t}
		table[hash] = append(table[hash], created)
		order = append(order, created)
		return nil
	})
	if err = errors.Join(err, input.Close()); err != nil {
		return nil, err
	}
	ctx.NodeLogger(g).Debug("input grouped", "groups", len(order))

	pos := 0
	return execution.NewBaseIterator(func() (tuple.Tuple, error) {
		if pos >= len(order) {
			return nil, nil
		}
		grp := order[pos]
		pos++

		ord := g.ordinal
		if ord == primitives.NoTupleOrdinal {
			ord = grp.first.TupleOrdinal()
		}
		group := tuple.NewGroupedCollection(ord, grp.members(), g.keyColumns(grp.first))
		for source, columns := range g.sourceKeyColumns(grp.first) {
			group.WithSourceKeys(source, columns)
		}
		return group, nil
	}, nil), nil
}

// sourceKeyColumns returns, per source ordinal inside member, the column
// ordinals of that source that key expressions reference directly.
func (g *GroupBy) sourceKeyColumns(member tuple.Tuple) map[primitives.TupleOrdinal][]int {
	columns := make(map[primitives.TupleOrdinal][]int)
	for _, k := range g.keys.Expressions() {
		col, ok := k.(*expression.Column)
		if !ok || col.TupleOrdinal() == primitives.NoTupleOrdinal {
			continue
		}
		name, ok := col.ColumnName()
		if !ok {
			continue
		}
		sub := member.SubTuple(col.TupleOrdinal())
		if sub == nil {
			continue
		}
		if i := sub.ColumnOrdinal(name); i >= 0 {
			columns[col.TupleOrdinal()] = append(columns[col.TupleOrdinal()], i)
		}
	}
	return columns
}

// keyColumns returns the column ordinals of member that key expressions
// reference directly.
func (g *GroupBy) keyColumns(member tuple.Tuple) []int {
	var columns []int
	for _, k := range g.keys.Expressions() {
		col, ok := k.(*expression.Column)
		if !ok {
			continue
		}
		name, ok := col.ColumnName()
		if !ok {
			continue
		}
		if col.TupleOrdinal() != primitives.NoTupleOrdinal && col.TupleOrdinal() != member.TupleOrdinal() {
			continue
		}
		if i := member.ColumnOrdinal(name); i >= 0 {
			columns = append(columns, i)
		}
	}
	return columns
}
