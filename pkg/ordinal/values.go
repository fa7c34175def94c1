package ordinal

import (
	"strings"

	"payloadbuilder/pkg/primitives"
)

const hashMultiplier = 31

// Values is a fixed-size vector of typed values used as a hash and equality
// key by joins, group by and the batch cache.
type Values struct {
	slots []slot
}

// New creates a vector holding values.
func New(values ...any) Values {
	slots := make([]slot, len(values))
	for i, v := range values {
		slots[i] = newSlot(v)
	}
	return Values{slots: slots}
}

// Size returns the number of positions.
func (v Values) Size() int {
	return len(v.slots)
}

// Value returns the original value at position i.
func (v Values) Value(i int) any {
	return v.slots[i].raw
}

// Values returns the original values.
func (v Values) Values() []any {
	out := make([]any, len(v.slots))
	for i, s := range v.slots {
		out[i] = s.raw
	}
	return out
}

// Hash accumulates the value hashes of every position.
func (v Values) Hash() primitives.HashCode {
	var h uint64 = 1
	for _, s := range v.slots {
		h = h*hashMultiplier + s.hash()
	}
	return primitives.HashCode(h)
}

// Equal reports whether both vectors have the same size and every position is
// equal.
func (v Values) Equal(o Values) bool {
	if len(v.slots) != len(o.slots) {
		return false
	}
	for i := range v.slots {
		if !equal(v.slots[i], o.slots[i]) {
			return false
		}
	}
	return true
}

// Compare orders two vectors position by position. A shorter vector that is a
// prefix of the other sorts first.
func (v Values) Compare(o Values) int {
	n := min(len(v.slots), len(o.slots))
	for i := 0; i < n; i++ {
		if c := compare(v.slots[i], o.slots[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(v.slots) < len(o.slots):
		return -1
	case len(v.slots) > len(o.slots):
		return 1
	default:
		return 0
	}
}

// IsNull reports whether any position holds nil.
func (v Values) IsNull() bool {
	for _, s := range v.slots {
		if s.raw == nil {
			return true
		}
	}
	return false
}

// Canonical returns a textual key of the vector. Vectors that are not equal
// never share a key. Equal vectors share it unless a position mixes a string
// with a number ("1" and 1), which only costs a cache miss. The batch cache
// uses it as the value part of cache keys.
func (v Values) Canonical() string {
	var b strings.Builder
	for i, s := range v.slots {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s.text())
	}
	return b.String()
}

func (v Values) String() string {
	return "[" + v.Canonical() + "]"
}
