package scan

import (
	"fmt"
	"slices"
	"strings"

	"payloadbuilder/pkg/catalog"
	"payloadbuilder/pkg/dberror"
	"payloadbuilder/pkg/execution"
	"payloadbuilder/pkg/ordinal"
	"payloadbuilder/pkg/primitives"
	"payloadbuilder/pkg/tuple"
)

// IndexScan looks up the rows of a table for the outer values published in
// the execution context. It is the index-capable inner operator of batch
// joins and of the batch cache.
//
// Unordered scans consume outer values lazily, one key per lookup. Ordered
// scans drain the values on the first read, sort them, and return rows in
// ascending key order, which is what a batch merge join requires.
type IndexScan struct {
	id      primitives.NodeID
	table   *Table
	index   catalog.Index
	ordered bool
}

// NewIndexScan creates an index scan. The index columns must exist in table.
func NewIndexScan(id primitives.NodeID, table *Table, index catalog.Index) (*IndexScan, error) {
	if !strings.EqualFold(index.Table, table.Name()) {
		return nil, fmt.Errorf("index %s does not belong to table %s", index.Name(), table.Name())
	}
	for _, c := range index.Columns {
		if table.Schema().ColumnOrdinal(c) < 0 {
			return nil, fmt.Errorf("index %s references unknown column %s", index.Name(), c)
		}
	}
	return &IndexScan{id: id, table: table, index: index}, nil
}

// Ordered makes the scan return rows sorted by index key.
func (s *IndexScan) Ordered() *IndexScan {
	c := *s
	c.ordered = true
	return &c
}

// Index returns the index descriptor the scan serves.
func (s *IndexScan) Index() catalog.Index {
	return s.index
}

func (s *IndexScan) NodeID() primitives.NodeID      { return s.id }
func (s *IndexScan) Kind() execution.OperatorKind   { return execution.KindIndexScan }
func (s *IndexScan) Children() []execution.Operator { return nil }

func (s *IndexScan) Describe() string {
	d := s.index.Name()
	if s.ordered {
		d += " ordered"
	}
	return d
}

func (s *IndexScan) Open(ctx *execution.ExecutionContext) (execution.TupleIterator, error) {
	values := ctx.OuterValues()
	if values == nil {
		return nil, dberror.ContractViolation(dberror.CodeMissingOuterValues, execution.Component(s),
			"index scan on %s opened without outer values", s.index.Name())
	}

	if s.ordered {
		return s.openOrdered(values)
	}

	var pending []tuple.Tuple
	return execution.NewBaseIterator(func() (tuple.Tuple, error) {
		for len(pending) == 0 {
			if !values.HasNext() {
				return nil, nil
			}
			rows, err := s.lookup(values.Next())
			if err != nil {
				return nil, err
			}
			pending = rows
		}
		next := pending[0]
		pending = pending[1:]
		return next, nil
	}, nil), nil
}

func (s *IndexScan) openOrdered(values execution.OuterValues) (execution.TupleIterator, error) {
	keys := execution.DrainOuterValues(values)
	slices.SortStableFunc(keys, ordinal.Values.Compare)

	var out []tuple.Tuple
	for i, key := range keys {
		if i > 0 && keys[i-1].Equal(key) {
			continue
		}
		rows, err := s.lookup(key)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return execution.NewSliceIterator(out), nil
}

func (s *IndexScan) lookup(key ordinal.Values) ([]tuple.Tuple, error) {
	if key.Size() != len(s.index.Columns) {
		return nil, dberror.ContractViolation(dberror.CodeUnexpectedTuple, execution.Component(s),
			"index %s expects %d key values, got %d", s.index.Name(), len(s.index.Columns), key.Size())
	}
	return s.table.Lookup(s.index.Columns, key)
}
