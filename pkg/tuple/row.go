package tuple

import (
	"payloadbuilder/pkg/primitives"
)

// Row is a tuple produced by a table source: one value per schema column.
type Row struct {
	ordinal primitives.TupleOrdinal
	schema  *Schema
	values  []any
}

// NewRow creates a row for the source with the given ordinal. values must be
// aligned with schema.Columns; missing trailing values read as nil.
func NewRow(ordinal primitives.TupleOrdinal, schema *Schema, values []any) *Row {
	return &Row{
		ordinal: ordinal,
		schema:  schema,
		values:  values,
	}
}

func (r *Row) TupleOrdinal() primitives.TupleOrdinal {
	return r.ordinal
}

func (r *Row) SubTuple(ordinal primitives.TupleOrdinal) Tuple {
	if r.ordinal == ordinal {
		return r
	}
	return nil
}

func (r *Row) ColumnCount() int {
	return r.schema.NumColumns()
}

func (r *Row) ColumnName(i int) string {
	return r.schema.ColumnName(i)
}

func (r *Row) ColumnOrdinal(name string) int {
	return r.schema.ColumnOrdinal(name)
}

func (r *Row) Value(i int) any {
	if i < 0 || i >= len(r.values) {
		return nil
	}
	return r.values[i]
}

func (r *Row) QualifiedValue(name QualifiedName, partIndex int) any {
	return resolveColumn(r, name, partIndex)
}

// Schema returns the schema shared by the rows of this row's source.
func (r *Row) Schema() *Schema {
	return r.schema
}

// Values returns the backing values. Callers must not modify the slice.
func (r *Row) Values() []any {
	return r.values
}

func (r *Row) String() string {
	return Format(r)
}
