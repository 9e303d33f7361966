package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuestTokenRoundTrip(t *testing.T) {
	require.NoError(t, Init())

	id, token, err := NewGuestToken()
	require.NoError(t, err)
	require.NotEmpty(t, token)

	got, err := VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	require.NoError(t, Init())

	_, err := VerifyToken("definitely-not-a-jwt")
	assert.Error(t, err)
}

func TestVerifyRejectsTokenFromOldKey(t *testing.T) {
	require.NoError(t, Init())
	_, token, err := NewGuestToken()
	require.NoError(t, err)

	// Re-initializing rotates the in-memory key pair, which must
	// invalidate everything minted before.
	require.NoError(t, Init())
	_, err = VerifyToken(token)
	assert.Error(t, err)
}

func TestInitRejectsBadExpireTime(t *testing.T) {
	t.Setenv("TOKEN_EXPIRE_TIME", "sometime later")
	assert.Error(t, Init())

	t.Setenv("TOKEN_EXPIRE_TIME", "never")
	assert.NoError(t, Init())
}
