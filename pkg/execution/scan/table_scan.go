package scan

import (
	"fmt"

	"payloadbuilder/pkg/execution"
	"payloadbuilder/pkg/primitives"
)

// TableScan reads every row of a table.
type TableScan struct {
	id    primitives.NodeID
	table *Table
}

// NewTableScan creates a full scan of table.
func NewTableScan(id primitives.NodeID, table *Table) *TableScan {
	return &TableScan{id: id, table: table}
}

func (s *TableScan) NodeID() primitives.NodeID      { return s.id }
func (s *TableScan) Kind() execution.OperatorKind   { return execution.KindTableScan }
func (s *TableScan) Children() []execution.Operator { return nil }

func (s *TableScan) Describe() string {
	return fmt.Sprintf("%s #%d", s.table.Name(), s.table.Ordinal())
}

func (s *TableScan) Open(*execution.ExecutionContext) (execution.TupleIterator, error) {
	return execution.NewSliceIterator(s.table.scan()), nil
}
