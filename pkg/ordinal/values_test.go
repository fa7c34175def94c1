package ordinal

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEqual_CrossType(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"int vs numeric string", 1, "1", true},
		{"bool true vs int", true, 1, true},
		{"bool false vs long", false, int64(0), true},
		{"float vs double", float32(1), float64(1), true},
		{"float vs double fraction", float32(0.1), 0.1, true},
		{"int vs long", int32(7), int64(7), true},
		{"double vs int", 3.0, 3, true},
		{"non integral double vs int", 3.5, 3, false},
		{"numeric string vs double", "2.5", 2.5, true},
		{"2^63 vs max long", math.Pow(2, 63), int64(math.MaxInt64), false},
		{"2^63 vs min long", math.Pow(2, 63), int64(math.MinInt64), false},
		{"2^63 string vs double", "9223372036854775808", math.Pow(2, 63), true},
		{"string vs string literal", "a", "a", true},
		{"numeric strings compare literally", "1", "1.0", false},
		{"string vs int mismatch", "abc", 1, false},
		{"bool vs string", true, "1", true},
		{"nil vs nil", nil, nil, true},
		{"nil vs zero", nil, 0, false},
		{"any vs any", []int{1, 2}, []int{1, 2}, true},
		{"any vs string", []int{1}, "1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EqualValues(tt.a, tt.b))
			assert.Equal(t, tt.want, EqualValues(tt.b, tt.a), "symmetric")
			assert.True(t, EqualValues(tt.a, tt.a), "reflexive")
			if tt.want {
				assert.Equal(t, HashValue(tt.a), HashValue(tt.b), "equal values must hash equal")
				assert.Equal(t, 0, CompareValues(tt.a, tt.b))
			}
		})
	}
}

func TestValues_EqualAndHash(t *testing.T) {
	assert.True(t, New(1).Equal(New("1")))
	assert.True(t, New(true).Equal(New(1)))
	assert.True(t, New(float32(1)).Equal(New(1.0)))
	assert.Equal(t, New(1).Hash(), New("1").Hash())
	assert.Equal(t, New(true).Hash(), New(1).Hash())
	assert.Equal(t, New(float32(1)).Hash(), New(1.0).Hash())

	assert.True(t, New(1, "x").Equal(New(int64(1), "x")))
	assert.False(t, New(1, "x").Equal(New(1, "y")))
	assert.False(t, New(1).Equal(New(1, 2)))
	assert.NotEqual(t, New(1, 2).Hash(), New(2, 1).Hash())
}

func TestValues_Compare(t *testing.T) {
	tests := []struct {
		a, b Values
		want int
	}{
		{New(1), New(2), -1},
		{New(2), New("1"), 1},
		{New("a"), New("b"), -1},
		{New(nil), New(0), -1},
		{New(1, 1), New(1, 2), -1},
		{New(1), New(1, 0), -1},
		{New(1.5), New(1), 1},
		{New(2, "b"), New(2, "b"), 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.a.Compare(tt.b), "%v vs %v", tt.a, tt.b)
		assert.Equal(t, -tt.want, tt.b.Compare(tt.a), "%v vs %v", tt.b, tt.a)
	}
}

func TestValues_Canonical(t *testing.T) {
	assert.Equal(t, New(1, "abc").Canonical(), New(int64(1), "abc").Canonical())
	assert.Equal(t, New(1).Canonical(), New(1.0).Canonical())
	assert.NotEqual(t, New("1").Canonical(), New("1.0").Canonical(), "literally different strings")
	assert.False(t, New("1").Equal(New("1.0")))
	assert.Equal(t, `1,"abc",null,2.5`, New(true, "abc", nil, 2.5).Canonical())
	assert.Equal(t, `[7]`, New(int64(7)).String())
	assert.NotEqual(t, New("a,b").Canonical(), New("a", "b").Canonical())
}

func TestValues_Accessors(t *testing.T) {
	v := New(1, nil, "x")
	assert.Equal(t, 3, v.Size())
	assert.Equal(t, "x", v.Value(2))
	assert.Equal(t, []any{1, nil, "x"}, v.Values())
	assert.True(t, v.IsNull())
	assert.False(t, New(1).IsNull())
}
