package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHasher(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)

	hash, err := h.Hash("p")
	require.NoError(t, err)
	assert.NotEqual(t, "p", hash)

	assert.True(t, h.Verify(hash, "p"))
	assert.False(t, h.Verify(hash, "q"))
	assert.False(t, h.Verify("not-a-hash", "p"))
}
