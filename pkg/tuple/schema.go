package tuple

import (
	"fmt"
	"strings"
)

// Schema describes the columns of the rows produced by a table source.
// It is shared by every row of that source; lookups by name are
// case-insensitive.
type Schema struct {
	// Columns contains the name of each column in order
	Columns []string

	index map[string]int
}

// NewSchema creates a schema for the given column names.
// Duplicate names resolve to the first occurrence.
func NewSchema(columns ...string) *Schema {
	colsCopy := make([]string, len(columns))
	copy(colsCopy, columns)

	index := make(map[string]int, len(columns))
	for i, c := range colsCopy {
		key := strings.ToLower(c)
		if _, ok := index[key]; !ok {
			index[key] = i
		}
	}

	return &Schema{
		Columns: colsCopy,
		index:   index,
	}
}

// NumColumns returns the number of columns in this schema.
func (s *Schema) NumColumns() int {
	if s == nil {
		return 0
	}
	return len(s.Columns)
}

// ColumnOrdinal returns the ordinal of the named column or -1.
func (s *Schema) ColumnOrdinal(name string) int {
	if s == nil {
		return -1
	}
	if i, ok := s.index[strings.ToLower(name)]; ok {
		return i
	}
	return -1
}

// ColumnName returns the name of the ith column, or the empty string when out of bounds.
func (s *Schema) ColumnName(i int) string {
	if s == nil || i < 0 || i >= len(s.Columns) {
		return ""
	}
	return s.Columns[i]
}

// String returns a string representation of this schema.
// Format: "(col1, col2, ...)"
func (s *Schema) String() string {
	return fmt.Sprintf("(%s)", strings.Join(s.Columns, ", "))
}
