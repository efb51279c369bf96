package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashCredential(t *testing.T) {
	h, err := HashCredential("pw1")
	require.NoError(t, err)
	assert.True(t, IsHashed(h))
	assert.True(t, CheckCredential(h, "pw1"))
	assert.False(t, CheckCredential(h, "pw2"))

	again, err := HashCredential(h)
	require.NoError(t, err)
	assert.Equal(t, h, again)

	empty, err := HashCredential("")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestCheckCredential_Plaintext(t *testing.T) {
	assert.True(t, CheckCredential("pw1", "pw1"))
	assert.False(t, CheckCredential("pw1", "pw1 "))
	assert.False(t, CheckCredential("", ""))
}
