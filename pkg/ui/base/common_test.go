package base

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", TruncateString("short", 10))
	assert.Equal(t, "abcdefg...", TruncateString("abcdefghijklmnop", 10))
	assert.Equal(t, "ab", TruncateString("abcdef", 2))
	assert.Equal(t, "äöü...", TruncateString("äöüäöüäöü", 6))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 10, Clamp(3, 10, 30))
	assert.Equal(t, 30, Clamp(99, 10, 30))
	assert.Equal(t, 12, Clamp(12, 10, 30))
}
