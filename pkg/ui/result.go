// Package ui renders query results: plain tables for the command line and
// an interactive browser built on bubbletea.
package ui

import (
	"fmt"
	"strings"
	"time"

	"payloadbuilder/pkg/primitives"
	"payloadbuilder/pkg/tuple"
)

// Result is one executed plan ready for display.
type Result struct {
	Title   string
	Plan    string
	Columns []string
	Rows    [][]string
	Elapsed time.Duration
	Err     error
}

// NewResult flattens rows into a table. Columns are named ordinal.column and
// appear in first seen order, so rows missing a joined side (left joins)
// leave their cells empty. Populated collections show every member value.
func NewResult(title string, rows []tuple.Tuple) Result {
	r := Result{Title: title}
	index := make(map[string]int)

	cells := make([]map[int]string, len(rows))
	for i, row := range rows {
		cells[i] = make(map[int]string)
		flatten(row, func(name string, v any) {
			col, ok := index[name]
			if !ok {
				col = len(r.Columns)
				index[name] = col
				r.Columns = append(r.Columns, name)
			}
			cells[i][col] = FormatValue(v)
		})
	}

	r.Rows = make([][]string, len(rows))
	for i := range rows {
		r.Rows[i] = make([]string, len(r.Columns))
		for col, v := range cells[i] {
			r.Rows[i][col] = v
		}
	}
	return r
}

func flatten(t tuple.Tuple, emit func(name string, v any)) {
	if c, ok := t.(*tuple.CompositeTuple); ok {
		for _, m := range c.Members() {
			flatten(m, emit)
		}
		return
	}

	prefix := ""
	if o := t.TupleOrdinal(); o != primitives.NoTupleOrdinal {
		prefix = fmt.Sprintf("%d.", o)
	}
	for i := 0; i < t.ColumnCount(); i++ {
		emit(prefix+t.ColumnName(i), t.Value(i))
	}
}

// FormatValue renders a single cell.
func FormatValue(v any) string {
	switch s := v.(type) {
	case nil:
		return "null"
	case tuple.ValueSequence:
		parts := make([]string, 0, len(s.Values()))
		for _, e := range s.Values() {
			parts = append(parts, FormatValue(e))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case float64:
		return fmt.Sprintf("%g", s)
	default:
		return fmt.Sprint(v)
	}
}
