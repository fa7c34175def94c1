package types

// Type tags the runtime representation of a value. Key vectors store the tag
// next to an unboxed payload so that the common primitive cases never go
// through interface comparisons.
type Type int

const (
	NullType Type = iota
	IntType
	LongType
	FloatType
	DoubleType
	BooleanType
	StringType
	AnyType
)

// String returns a string representation of the type
func (t Type) String() string {
	switch t {
	case NullType:
		return "NULL"
	case IntType:
		return "INT"
	case LongType:
		return "LONG"
	case FloatType:
		return "FLOAT"
	case DoubleType:
		return "DOUBLE"
	case BooleanType:
		return "BOOLEAN"
	case StringType:
		return "STRING"
	case AnyType:
		return "ANY"
	default:
		return "UNKNOWN_TYPE"
	}
}

// IsIntegral reports whether values of this type are stored as int64.
func (t Type) IsIntegral() bool {
	return t == IntType || t == LongType
}

// IsFloating reports whether values of this type are stored as float64.
func (t Type) IsFloating() bool {
	return t == FloatType || t == DoubleType
}

// IsNumeric reports whether the type is one of the numeric types.
func (t Type) IsNumeric() bool {
	return t.IsIntegral() || t.IsFloating()
}

// Of classifies a Go value into its type tag. Sized integers collapse to
// IntType (32 bits and below) or LongType; everything unknown is AnyType.
func Of(v any) Type {
	switch v.(type) {
	case nil:
		return NullType
	case int8, int16, int32, uint8, uint16:
		return IntType
	case int, int64, uint, uint32, uint64:
		return LongType
	case float32:
		return FloatType
	case float64:
		return DoubleType
	case bool:
		return BooleanType
	case string:
		return StringType
	default:
		return AnyType
	}
}
