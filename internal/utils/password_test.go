package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("Str0ng!pass")
	require.NoError(t, err)
	assert.NotEqual(t, "Str0ng!pass", hash)

	assert.True(t, VerifyPassword(hash, "Str0ng!pass"))
	assert.False(t, VerifyPassword(hash, "Wr0ng!pass"))
	assert.False(t, VerifyPassword("not-a-bcrypt-hash", "Str0ng!pass"))
}

func TestHashPasswordSalts(t *testing.T) {
	a, err := HashPassword("Str0ng!pass")
	require.NoError(t, err)
	b, err := HashPassword("Str0ng!pass")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
