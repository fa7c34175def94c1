package tuple

import (
	"fmt"
	"payloadbuilder/pkg/primitives"
	"strings"
)

// Tuple is the universal row abstraction every operator reads and writes through.
//
// A tuple is addressed by the ordinal of the table source (or sub query) that
// produced it. Composite results of joins expose their members through SubTuple
// so that an expression bound to a specific source can find its row regardless
// of how many joins sit between it and the scan.
type Tuple interface {
	// TupleOrdinal returns the ordinal of the source that produced this tuple,
	// or primitives.NoTupleOrdinal for tuples made of several sources.
	TupleOrdinal() primitives.TupleOrdinal

	// SubTuple returns the tuple with the given ordinal contained in this tuple
	// (possibly the tuple itself), or nil if there is none.
	SubTuple(ordinal primitives.TupleOrdinal) Tuple

	// ColumnCount returns the number of columns exposed by this tuple.
	ColumnCount() int

	// ColumnName returns the name of the column at ordinal i.
	ColumnName(i int) string

	// ColumnOrdinal returns the ordinal of the named column, or -1.
	ColumnOrdinal(name string) int

	// Value returns the value of the column at ordinal i, nil when out of range.
	Value(i int) any

	// QualifiedValue resolves name starting at name.Parts[partIndex]. Parts
	// before partIndex were already consumed by the caller (typically an alias).
	QualifiedValue(name QualifiedName, partIndex int) any
}

// QualifiedName is a dotted reference such as "a.col" or "col.nested.field".
type QualifiedName struct {
	Parts []string
}

// NewQualifiedName creates a qualified name from its parts.
func NewQualifiedName(parts ...string) QualifiedName {
	p := make([]string, len(parts))
	copy(p, parts)
	return QualifiedName{Parts: p}
}

// ParseQualifiedName splits a dotted reference into a qualified name.
func ParseQualifiedName(s string) QualifiedName {
	return QualifiedName{Parts: strings.Split(s, ".")}
}

// Len returns the number of parts.
func (q QualifiedName) Len() int {
	return len(q.Parts)
}

// Last returns the final part of the name.
func (q QualifiedName) Last() string {
	if len(q.Parts) == 0 {
		return ""
	}
	return q.Parts[len(q.Parts)-1]
}

func (q QualifiedName) String() string {
	return strings.Join(q.Parts, ".")
}

// resolvePath walks the remaining parts of a qualified name into nested map values.
func resolvePath(value any, name QualifiedName, partIndex int) any {
	for i := partIndex; i < len(name.Parts); i++ {
		if value == nil {
			return nil
		}
		m, ok := value.(map[string]any)
		if !ok {
			return nil
		}
		value = m[name.Parts[i]]
	}
	return value
}

// resolveColumn resolves a qualified name against the columns of t.
func resolveColumn(t Tuple, name QualifiedName, partIndex int) any {
	if partIndex < 0 || partIndex >= len(name.Parts) {
		return nil
	}
	ordinal := t.ColumnOrdinal(name.Parts[partIndex])
	if ordinal < 0 {
		return nil
	}
	return resolvePath(t.Value(ordinal), name, partIndex+1)
}

// Format renders the column view of a tuple as name=value pairs.
func Format(t Tuple) string {
	if t == nil {
		return "<nil>"
	}
	var parts []string
	for i := 0; i < t.ColumnCount(); i++ {
		parts = append(parts, fmt.Sprintf("%s=%v", t.ColumnName(i), formatValue(t.Value(i))))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatValue(v any) any {
	switch s := v.(type) {
	case nil:
		return "null"
	case ValueSequence:
		return s.Values()
	case TupleSequence:
		rows := make([]string, 0, s.Len())
		for i := 0; i < s.Len(); i++ {
			rows = append(rows, Format(s.At(i)))
		}
		return rows
	default:
		return v
	}
}
