package scan

import (
	"fmt"

	"payloadbuilder/pkg/execution"
	"payloadbuilder/pkg/primitives"
	"payloadbuilder/pkg/tuple"
)

// Values produces literal rows.
type Values struct {
	id   primitives.NodeID
	rows []tuple.Tuple
}

// NewValues creates a literal row source. Every row must have one value per
// column.
func NewValues(id primitives.NodeID, ordinal primitives.TupleOrdinal, columns []string, rows ...[]any) (*Values, error) {
	schema := tuple.NewSchema(columns...)
	out := make([]tuple.Tuple, len(rows))
	for i, r := range rows {
		if len(r) != len(columns) {
			return nil, fmt.Errorf("row %d has %d values, expected %d", i, len(r), len(columns))
		}
		out[i] = tuple.NewRow(ordinal, schema, r)
	}
	return &Values{id: id, rows: out}, nil
}

func (v *Values) NodeID() primitives.NodeID      { return v.id }
func (v *Values) Kind() execution.OperatorKind   { return execution.KindValues }
func (v *Values) Children() []execution.Operator { return nil }
func (v *Values) Describe() string               { return fmt.Sprintf("%d rows", len(v.rows)) }

func (v *Values) Open(*execution.ExecutionContext) (execution.TupleIterator, error) {
	return execution.NewSliceIterator(v.rows), nil
}

// BatchSource produces the batch of outer rows a batch parallel worker is
// processing. The worker stores the batch in the node slot of its cloned
// context before opening the plan containing the source.
type BatchSource struct {
	id primitives.NodeID
}

// NewBatchSource creates a batch source.
func NewBatchSource(id primitives.NodeID) *BatchSource {
	return &BatchSource{id: id}
}

// SetBatch stores the rows the source returns on ctx.
func (b *BatchSource) SetBatch(ctx *execution.ExecutionContext, rows []tuple.Tuple) {
	ctx.Slot(b.id).SetState(rows)
}

func (b *BatchSource) NodeID() primitives.NodeID      { return b.id }
func (b *BatchSource) Kind() execution.OperatorKind   { return execution.KindBatchSource }
func (b *BatchSource) Children() []execution.Operator { return nil }

func (b *BatchSource) Open(ctx *execution.ExecutionContext) (execution.TupleIterator, error) {
	rows, ok := ctx.Slot(b.id).State().([]tuple.Tuple)
	if !ok {
		return nil, fmt.Errorf("batch source #%d opened outside of a batch", b.id)
	}
	return execution.NewSliceIterator(rows), nil
}
