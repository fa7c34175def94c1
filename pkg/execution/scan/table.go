// Package scan holds the source operators of a plan: scans over in-memory
// tables, the index scan that honours the outer values contract, literal
// rows, the batch source of parallel plans, and filter.
package scan

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/atomic"

	"payloadbuilder/pkg/ordinal"
	"payloadbuilder/pkg/primitives"
	"payloadbuilder/pkg/tuple"
)

// Table is an in-memory table. It stands in for the external data sources
// (databases, services) a real catalog would expose, and counts how often it
// is read so tests can observe how many times a join invoked its inner side.
type Table struct {
	name    string
	ordinal primitives.TupleOrdinal
	schema  *tuple.Schema

	mu      sync.RWMutex
	rows    []tuple.Tuple
	indexes map[string]*hashIndex

	scans   atomic.Int64
	lookups atomic.Int64
}

type hashIndex struct {
	columns []int
	buckets map[primitives.HashCode][]int
}

// NewTable creates an empty table whose rows carry ordinal.
func NewTable(name string, ordinal primitives.TupleOrdinal, columns ...string) *Table {
	return &Table{
		name:    name,
		ordinal: ordinal,
		schema:  tuple.NewSchema(columns...),
		indexes: make(map[string]*hashIndex),
	}
}

// Name returns the table name.
func (t *Table) Name() string {
	return t.name
}

// Ordinal returns the tuple ordinal of the rows of the table.
func (t *Table) Ordinal() primitives.TupleOrdinal {
	return t.ordinal
}

// Schema returns the table schema.
func (t *Table) Schema() *tuple.Schema {
	return t.schema
}

// Insert appends a row. values must match the schema.
func (t *Table) Insert(values ...any) error {
	if len(values) != t.schema.NumColumns() {
		return fmt.Errorf("table %s expects %d values, got %d", t.name, t.schema.NumColumns(), len(values))
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows = append(t.rows, tuple.NewRow(t.ordinal, t.schema, values))
	clear(t.indexes)
	return nil
}

// MustInsert is Insert for fixtures; it panics on error.
func (t *Table) MustInsert(values ...any) *Table {
	if err := t.Insert(values...); err != nil {
		panic(err)
	}
	return t
}

// Rows returns a snapshot of the rows.
func (t *Table) Rows() []tuple.Tuple {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]tuple.Tuple, len(t.rows))
	copy(out, t.rows)
	return out
}

// Scans returns the number of full scans performed.
func (t *Table) Scans() int64 {
	return t.scans.Load()
}

// Lookups returns the number of key lookups performed.
func (t *Table) Lookups() int64 {
	return t.lookups.Load()
}

// Lookup returns the rows whose columns equal key, in insertion order.
func (t *Table) Lookup(columns []string, key ordinal.Values) ([]tuple.Tuple, error) {
	t.lookups.Inc()

	idx, err := t.index(columns)
	if err != nil {
		return nil, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []tuple.Tuple
	for _, pos := range idx.buckets[key.Hash()] {
		row := t.rows[pos]
		if rowKey(row, idx.columns).Equal(key) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (t *Table) scan() []tuple.Tuple {
	t.scans.Inc()
	return t.Rows()
}

func (t *Table) index(columns []string) (*hashIndex, error) {
	name := strings.ToLower(strings.Join(columns, ","))

	t.mu.RLock()
	idx, ok := t.indexes[name]
	t.mu.RUnlock()
	if ok {
		return idx, nil
	}

	ordinals := make([]int, len(columns))
	for i, c := range columns {
		ordinals[i] = t.schema.ColumnOrdinal(c)
		if ordinals[i] < 0 {
			return nil, fmt.Errorf("table %s has no column %s", t.name, c)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	idx = &hashIndex{columns: ordinals, buckets: make(map[primitives.HashCode][]int)}
	for pos, row := range t.rows {
		h := rowKey(row, ordinals).Hash()
		idx.buckets[h] = append(idx.buckets[h], pos)
	}
	t.indexes[name] = idx
	return idx, nil
}

func rowKey(row tuple.Tuple, columns []int) ordinal.Values {
	values := make([]any, len(columns))
	for i, c := range columns {
		values[i] = row.Value(c)
	}
	return ordinal.New(values...)
}
