package blacklist

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVerifierRequiresSecret(t *testing.T) {
	_, err := NewVerifier("", time.Hour)
	assert.Error(t, err)
}

func TestMintVerifyRoundTrip(t *testing.T) {
	verifier, err := NewVerifier("test-secret", time.Hour)
	require.NoError(t, err)

	signed, err := verifier.Mint("user-1")
	require.NoError(t, err)
	require.NotEmpty(t, signed)

	claims, err := verifier.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.WithinDuration(t, time.Now(), claims.IssuedAt, 2*time.Second)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt, 2*time.Second)
}

func TestMintRequiresUserID(t *testing.T) {
	verifier, err := NewVerifier("test-secret", time.Hour)
	require.NoError(t, err)

	_, err = verifier.Mint("")
	assert.Error(t, err)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	minter, err := NewVerifier("secret-a", time.Hour)
	require.NoError(t, err)
	verifier, err := NewVerifier("secret-b", time.Hour)
	require.NoError(t, err)

	signed, err := minter.Mint("user-1")
	require.NoError(t, err)

	_, err = verifier.Verify(signed)
	assert.Error(t, err)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	verifier, err := NewVerifier("test-secret", time.Hour)
	require.NoError(t, err)

	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": "user-1",
		"iat":     now.Add(-2 * time.Hour).Unix(),
		"exp":     now.Add(-time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = verifier.Verify(signed)
	assert.Error(t, err)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	verifier, err := NewVerifier("test-secret", time.Hour)
	require.NoError(t, err)

	_, err = verifier.Verify("not-a-token")
	assert.Error(t, err)
}
