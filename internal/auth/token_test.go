// ABOUTME: Unit tests for JWT token verification and generation
// ABOUTME: Tests valid tokens, claims mapping, invalid tokens, and expired tokens

package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("voyengo-test-secret-thirty-two-b")

func newTestVerifier(t *testing.T) *JWTVerifier {
	t.Helper()
	v, err := NewJWTVerifier(testSecret)
	require.NoError(t, err)
	return v
}

func TestNewJWTVerifier_RejectsShortSecret(t *testing.T) {
	_, err := NewJWTVerifier([]byte("short"))
	assert.ErrorIs(t, err, ErrWeakSecret)
}

func TestJWTVerifier_RoundTrip(t *testing.T) {
	v := newTestVerifier(t)

	token, err := v.Generate(Identity{UserID: "u1", DisplayName: "Ana", IsPrivileged: true}, time.Hour)
	require.NoError(t, err)

	id, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, &Identity{UserID: "u1", DisplayName: "Ana", IsPrivileged: true}, id)
}

func TestJWTVerifier_DefaultsUnprivileged(t *testing.T) {
	v := newTestVerifier(t)

	token, err := v.Generate(Identity{UserID: "u2"}, time.Hour)
	require.NoError(t, err)

	id, err := v.Verify(token)
	require.NoError(t, err)
	assert.False(t, id.IsPrivileged)
	assert.Empty(t, id.DisplayName)
}

func TestJWTVerifier_Expired(t *testing.T) {
	v := newTestVerifier(t)

	token, err := v.Generate(Identity{UserID: "u1"}, -time.Minute)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTVerifier_InvalidTokens(t *testing.T) {
	v := newTestVerifier(t)

	other, err := NewJWTVerifier([]byte("another-secret-that-is-32-bytes!"))
	require.NoError(t, err)
	foreign, err := other.Generate(Identity{UserID: "u1"}, time.Hour)
	require.NoError(t, err)

	noSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(testSecret)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "u1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := map[string]struct {
		token string
		want  error
	}{
		"empty":        {"", ErrInvalidToken},
		"garbage":      {"not-a-jwt", ErrInvalidToken},
		"wrong secret": {foreign, ErrInvalidToken},
		"alg none":     {none, ErrInvalidToken},
		"missing sub":  {noSub, ErrMissingClaim},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestJWTVerifier_GenerateRequiresUser(t *testing.T) {
	v := newTestVerifier(t)
	_, err := v.Generate(Identity{}, time.Hour)
	assert.ErrorIs(t, err, ErrMissingClaim)
}
