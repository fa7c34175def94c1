package types

import (
	"cmp"
	"math"
	"strconv"
	"strings"
)

// AsInt64 returns the integral payload of v. ok is false when v is not one of
// the integral Go types.
func AsInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint:
		return int64(n), true // #nosec G115
	case uint64:
		return int64(n), true // #nosec G115
	default:
		return 0, false
	}
}

// AsFloat64 returns the floating payload of v, widening float32.
// Float32 values are widened through their shortest decimal representation so
// that float32(0.1) compares equal to 0.1 the way a user would expect.
func AsFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float32:
		f, err := strconv.ParseFloat(strconv.FormatFloat(float64(n), 'g', -1, 32), 64)
		if err != nil {
			return float64(n), true
		}
		return f, true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// BoolAsInt64 maps false to 0 and true to 1.
func BoolAsInt64(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// ParseNumber parses a numeric string. Integral strings report isInt; strings
// holding an integral float ("1.0") are reported as integers too so that they
// hash and compare like the integer they denote.
func ParseNumber(s string) (i int64, f float64, isInt bool, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0, false, false
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, float64(n), true, true
	}

	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) {
		return 0, 0, false, false
	}

	if IsIntegralFloat(n) {
		return int64(n), n, true, true
	}
	return 0, n, false, true
}

// IsIntegralFloat reports whether f holds an integer value that fits in int64.
// float64(math.MaxInt64) rounds up to 2^63, so the upper bound is exclusive.
func IsIntegralFloat(f float64) bool {
	return f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 && !math.IsInf(f, 0)
}

// CompareOrdered performs a three way comparison between two ordered values.
func CompareOrdered[T cmp.Ordered](a, b T) int {
	return cmp.Compare(a, b)
}
