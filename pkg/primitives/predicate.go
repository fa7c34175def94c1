package primitives

// Predicate is a comparison operator used by comparison expressions and join
// conditions.
type Predicate int

const (
	Equals Predicate = iota
	LessThan
	GreaterThan
	LessThanOrEqual
	GreaterThanOrEqual
	NotEqual
)

func (p Predicate) String() string {
	switch p {
	case Equals:
		return "="

	case LessThan:
		return "<"

	case GreaterThan:
		return ">"

	case LessThanOrEqual:
		return "<="

	case GreaterThanOrEqual:
		return ">="

	case NotEqual:
		return "!="

	default:
		return "UNKNOWN"
	}
}

// Matches reports whether a three-way comparison result satisfies the predicate.
// cmp follows the usual convention: negative when left < right, zero when equal
// and positive when left > right.
func (p Predicate) Matches(cmp int) bool {
	switch p {
	case Equals:
		return cmp == 0
	case LessThan:
		return cmp < 0
	case GreaterThan:
		return cmp > 0
	case LessThanOrEqual:
		return cmp <= 0
	case GreaterThanOrEqual:
		return cmp >= 0
	case NotEqual:
		return cmp != 0
	default:
		return false
	}
}
