package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintAndVerifyRoundTrip(t *testing.T) {
	v := NewJWTVerifier("shared-secret")
	token, err := Mint("shared-secret", "user-1", "session-1", RoleEdit)
	require.NoError(t, err)

	id, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id.UserID)
	assert.Equal(t, "session-1", id.SessionID)
	assert.Equal(t, RoleEdit, id.Role)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := Mint("secret-a", "user-1", "session-1", RoleEdit)
	require.NoError(t, err)

	v := NewJWTVerifier("secret-b")
	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsEmptyToken(t *testing.T) {
	v := NewJWTVerifier("secret")
	_, err := v.Verify("")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyDefaultsUnknownRoleToView(t *testing.T) {
	v := NewJWTVerifier("secret")
	token, err := Mint("secret", "user-1", "session-1", Role("admin"))
	require.NoError(t, err)
	id, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, RoleView, id.Role)
}
