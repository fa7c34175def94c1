package base

// TruncateString truncates a string to maxWidth runes with an ellipsis
func TruncateString(s string, maxWidth int) string {
	r := []rune(s)
	if len(r) <= maxWidth {
		return s
	}
	if maxWidth < 3 {
		return string(r[:maxWidth])
	}
	return string(r[:maxWidth-3]) + "..."
}

// Clamp bounds n to [lo, hi]
func Clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
