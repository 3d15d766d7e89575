package random

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHex(t *testing.T) {
	s, err := Hex(16)
	require.NoError(t, err)
	assert.Len(t, s, 32)
}

func TestString(t *testing.T) {
	s, err := String(10, CharsetUpperAlphaNum)
	require.NoError(t, err)
	assert.Len(t, s, 10)
	for _, r := range s {
		assert.Contains(t, CharsetUpperAlphaNum, string(r))
	}

	empty, err := String(0, "")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestUpperAlphaNum(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		s := UpperAlphaNum(8)
		assert.Len(t, s, 8)
		seen[s] = true
	}
	// Collisions over 50 draws from 36^8 would indicate a broken generator.
	assert.Greater(t, len(seen), 45)
}
