package ordinal

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"payloadbuilder/pkg/types"
)

// slot is one typed position of a Values vector. The numeric view of the
// value (integer or float, parsed once for strings) is computed when the slot
// is created so that hashing and equality never re-parse.
type slot struct {
	typ   types.Type
	raw   any
	i     int64
	f     float64
	isInt bool
	num   bool
}

func newSlot(v any) slot {
	s := slot{typ: types.Of(v), raw: v}

	switch s.typ {
	case types.IntType, types.LongType:
		s.i, _ = types.AsInt64(v)
		s.f = float64(s.i)
		s.isInt, s.num = true, true
	case types.FloatType, types.DoubleType:
		s.f, _ = types.AsFloat64(v)
		s.num = !math.IsNaN(s.f)
		if types.IsIntegralFloat(s.f) {
			s.i = int64(s.f)
			s.isInt = true
		}
	case types.BooleanType:
		s.i = types.BoolAsInt64(v.(bool))
		s.f = float64(s.i)
		s.isInt, s.num = true, true
	case types.StringType:
		s.i, s.f, s.isInt, s.num = types.ParseNumber(v.(string))
	}
	return s
}

// hash returns the value hash of the slot. Everything that compares equal
// under equal produces the same hash: integral values of any representation
// hash as the integer, other numbers as their float bits.
func (s slot) hash() uint64 {
	switch {
	case s.typ == types.NullType:
		return 0
	case s.num && s.isInt:
		return uint64(s.i) // #nosec G115
	case s.num:
		return math.Float64bits(s.f)
	case s.typ == types.StringType:
		return xxhash.Sum64String(s.raw.(string))
	default:
		return xxhash.Sum64String(fmt.Sprint(s.raw))
	}
}

// equal is the one equality matrix used by joins, group by and caches.
//
// Two strings compare literally. Any combination of numbers, booleans and
// numeric strings compares numerically, so "1", 1, int64(1), float32(1), 1.0
// and true are all equal. Null only equals null.
func equal(a, b slot) bool {
	if a.typ == types.NullType || b.typ == types.NullType {
		return a.typ == b.typ
	}

	if a.typ == types.StringType && b.typ == types.StringType {
		return a.raw.(string) == b.raw.(string)
	}

	if a.num && b.num {
		// An integer never equals a fraction or a float beyond int64.
		if a.isInt != b.isInt {
			return false
		}
		if a.isInt {
			return a.i == b.i
		}
		return a.f == b.f
	}

	if a.typ == types.AnyType && b.typ == types.AnyType {
		return reflect.DeepEqual(a.raw, b.raw)
	}
	return false
}

// compare orders two slots. Null sorts first, numbers order numerically,
// strings lexically, and anything else by its formatted representation.
func compare(a, b slot) int {
	if a.typ == types.NullType || b.typ == types.NullType {
		switch {
		case a.typ == b.typ:
			return 0
		case a.typ == types.NullType:
			return -1
		default:
			return 1
		}
	}

	if a.typ == types.StringType && b.typ == types.StringType {
		return strings.Compare(a.raw.(string), b.raw.(string))
	}

	if a.num && b.num {
		if a.isInt && b.isInt {
			return types.CompareOrdered(a.i, b.i)
		}
		return types.CompareOrdered(a.f, b.f)
	}

	if equal(a, b) {
		return 0
	}
	return strings.Compare(a.text(), b.text())
}

// text is the canonical textual form of the slot. Strings keep their literal
// form, so "1" and "1.0", which are different keys, never share a text.
// Numbers of any representation share the text of the number they denote.
func (s slot) text() string {
	switch {
	case s.typ == types.NullType:
		return "null"
	case s.typ == types.StringType:
		return strconv.Quote(s.raw.(string))
	case s.num && s.isInt:
		return strconv.FormatInt(s.i, 10)
	case s.num:
		return strconv.FormatFloat(s.f, 'g', -1, 64)
	default:
		return fmt.Sprint(s.raw)
	}
}

// EqualValues reports whether a and b are equal under the key equality rules.
func EqualValues(a, b any) bool {
	return equal(newSlot(a), newSlot(b))
}

// CompareValues orders a and b consistently with EqualValues.
func CompareValues(a, b any) int {
	return compare(newSlot(a), newSlot(b))
}

// HashValue returns the hash of a single value.
func HashValue(v any) uint64 {
	return newSlot(v).hash()
}
