package httpapi

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndCheckPassword_RoundTrips(t *testing.T) {
	hash, err := hashPassword("correct-horse-battery")
	require.NoError(t, err)
	assert.True(t, checkPasswordHash("correct-horse-battery", hash))
	assert.False(t, checkPasswordHash("wrong-password", hash))
}

func TestIssueAndParseAccessToken_RoundTrips(t *testing.T) {
	secret := []byte("test-secret")
	token, err := issueAccessToken(secret, "user-1")
	require.NoError(t, err)

	userID, err := parseAccessToken(secret, token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestParseAccessToken_RejectsWrongSecret(t *testing.T) {
	token, err := issueAccessToken([]byte("secret-a"), "user-1")
	require.NoError(t, err)

	_, err = parseAccessToken([]byte("secret-b"), token)
	assert.Error(t, err)
}

func TestParseAccessToken_RejectsExpiredToken(t *testing.T) {
	secret := []byte("test-secret")
	claims := jwt.MapClaims{
		"user_id": "user-1",
		"exp":     time.Now().Add(-time.Hour).Unix(),
		"iat":     time.Now().Add(-2 * time.Hour).Unix(),
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)

	_, err = parseAccessToken(secret, raw)
	assert.Error(t, err)
}
