package text

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abc...", Truncate("abcdef", 3))
	assert.Equal(t, "anything", Truncate("anything", 0))
	// "é" is two bytes; the cut backs off to the rune boundary.
	assert.Equal(t, "ab...", Truncate("abé", 3))
}
