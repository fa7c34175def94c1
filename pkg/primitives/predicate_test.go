package primitives

import "testing"

func TestPredicate_Matches(t *testing.T) {
	tests := []struct {
		op   Predicate
		cmp  int
		want bool
	}{
		{Equals, 0, true},
		{Equals, 1, false},
		{LessThan, -1, true},
		{LessThan, 0, false},
		{GreaterThan, 3, true},
		{LessThanOrEqual, 0, true},
		{GreaterThanOrEqual, -2, false},
		{NotEqual, 0, false},
		{NotEqual, -1, true},
		{Predicate(99), 0, false},
	}

	for _, tt := range tests {
		if got := tt.op.Matches(tt.cmp); got != tt.want {
			t.Errorf("%s.Matches(%d) = %v, want %v", tt.op, tt.cmp, got, tt.want)
		}
	}
}

func TestPredicate_String(t *testing.T) {
	if Equals.String() != "=" {
		t.Errorf("expected '=', got %q", Equals.String())
	}
	if Predicate(42).String() != "UNKNOWN" {
		t.Errorf("expected UNKNOWN for invalid predicate, got %q", Predicate(42).String())
	}
}
