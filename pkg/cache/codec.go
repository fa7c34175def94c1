package cache

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/golang/snappy"
	jsoniter "github.com/json-iterator/go"

	"payloadbuilder/pkg/primitives"
	"payloadbuilder/pkg/tuple"
	"payloadbuilder/pkg/types"
)

var codecJSON = jsoniter.Config{
	UseNumber:              true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()

type encodedValue struct {
	Type  types.Type `json:"t"`
	Value any        `json:"v"`
}

const (
	kindComposite  = "composite"
	kindCollection = "collection"
	kindGroup      = "group"
)

// encodedRow is a row, or with a kind, a composite or collection of members.
type encodedRow struct {
	Kind       string                            `json:"k,omitempty"`
	Ordinal    primitives.TupleOrdinal           `json:"o"`
	Columns    []string                          `json:"c,omitempty"`
	Values     []encodedValue                    `json:"v,omitempty"`
	Members    []encodedRow                      `json:"m,omitempty"`
	Keys       []int                             `json:"keys,omitempty"`
	SourceKeys map[primitives.TupleOrdinal][]int `json:"sk,omitempty"`
}

// EncodeRows serializes rows into a snappy compressed payload. Composite and
// collection tuples keep their members so sources stay addressable by
// ordinal after decoding. Value types survive the round trip for the
// primitive types.
func EncodeRows(rows []tuple.Tuple) ([]byte, error) {
	encoded := make([]encodedRow, len(rows))
	for i, t := range rows {
		encoded[i] = encodeTuple(t)
	}

	buf, err := codecJSON.Marshal(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cached rows: %w", err)
	}
	return snappy.Encode(nil, buf), nil
}

func encodeTuple(t tuple.Tuple) encodedRow {
	switch v := t.(type) {
	case *tuple.CompositeTuple:
		return encodedRow{Kind: kindComposite, Ordinal: v.TupleOrdinal(), Members: encodeMembers(v.Members())}
	case *tuple.CollectionTuple:
		row := encodedRow{Kind: kindCollection, Ordinal: v.TupleOrdinal(), Members: encodeMembers(v.Members())}
		if v.Grouped() {
			row.Kind = kindGroup
			row.Keys = v.KeyColumns()
			row.SourceKeys = v.SourceKeys()
		}
		return row
	}

	row := encodedRow{
		Ordinal: t.TupleOrdinal(),
		Columns: make([]string, t.ColumnCount()),
		Values:  make([]encodedValue, t.ColumnCount()),
	}
	for c := 0; c < t.ColumnCount(); c++ {
		v := t.Value(c)
		row.Columns[c] = t.ColumnName(c)
		row.Values[c] = encodedValue{Type: types.Of(v), Value: v}
	}
	return row
}

func encodeMembers(members []tuple.Tuple) []encodedRow {
	out := make([]encodedRow, len(members))
	for i, m := range members {
		out[i] = encodeTuple(m)
	}
	return out
}

// DecodeRows is the inverse of EncodeRows. Rows with the same column list
// share one schema.
func DecodeRows(payload []byte) ([]tuple.Tuple, error) {
	buf, err := snappy.Decode(nil, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress cached rows: %w", err)
	}

	var encoded []encodedRow
	if err := codecJSON.Unmarshal(buf, &encoded); err != nil {
		return nil, fmt.Errorf("failed to decode cached rows: %w", err)
	}

	d := decoder{schemas: make(map[string]*tuple.Schema)}
	rows := make([]tuple.Tuple, len(encoded))
	for i, r := range encoded {
		if rows[i], err = d.decode(r); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

type decoder struct {
	schemas map[string]*tuple.Schema
}

func (d decoder) decode(r encodedRow) (tuple.Tuple, error) {
	switch r.Kind {
	case "":
		return d.row(r)
	case kindComposite, kindCollection, kindGroup:
	default:
		return nil, fmt.Errorf("unknown cached tuple kind %q", r.Kind)
	}

	members := make([]tuple.Tuple, len(r.Members))
	for i, m := range r.Members {
		var err error
		if members[i], err = d.decode(m); err != nil {
			return nil, err
		}
	}

	switch r.Kind {
	case kindComposite:
		c := tuple.NewComposite(len(members))
		for _, m := range members {
			c.Append(m)
		}
		return c, nil
	case kindGroup:
		g := tuple.NewGroupedCollection(r.Ordinal, members, r.Keys)
		for source, columns := range r.SourceKeys {
			g.WithSourceKeys(source, columns)
		}
		return g, nil
	default:
		c := tuple.NewCollection(r.Ordinal, nil)
		for _, m := range members {
			c.Add(m)
		}
		return c, nil
	}
}

func (d decoder) row(r encodedRow) (tuple.Tuple, error) {
	if len(r.Values) != len(r.Columns) {
		return nil, fmt.Errorf("cached row has %d columns and %d values", len(r.Columns), len(r.Values))
	}
	key := strings.Join(r.Columns, "\x00")
	schema, ok := d.schemas[key]
	if !ok {
		schema = tuple.NewSchema(r.Columns...)
		d.schemas[key] = schema
	}

	values := make([]any, len(r.Values))
	for c, v := range r.Values {
		var err error
		if values[c], err = decodeValue(v); err != nil {
			return nil, fmt.Errorf("column %s: %w", r.Columns[c], err)
		}
	}
	return tuple.NewRow(r.Ordinal, schema, values), nil
}

func decodeValue(v encodedValue) (any, error) {
	n, isNumber := v.Value.(json.Number)

	switch v.Type {
	case types.NullType:
		return nil, nil
	case types.IntType, types.LongType:
		if !isNumber {
			return nil, fmt.Errorf("expected number, got %T", v.Value)
		}
		i, err := n.Int64()
		if err != nil {
			return nil, err
		}
		if v.Type == types.IntType {
			return int32(i), nil // #nosec G115
		}
		return i, nil
	case types.FloatType, types.DoubleType:
		if !isNumber {
			return nil, fmt.Errorf("expected number, got %T", v.Value)
		}
		f, err := n.Float64()
		if err != nil {
			return nil, err
		}
		if v.Type == types.FloatType {
			return float32(f), nil
		}
		return f, nil
	case types.BooleanType:
		b, ok := v.Value.(bool)
		if !ok {
			return nil, fmt.Errorf("expected boolean, got %T", v.Value)
		}
		return b, nil
	case types.StringType:
		s, ok := v.Value.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v.Value)
		}
		return s, nil
	default:
		return v.Value, nil
	}
}
