package auth

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	svc := NewJWTService("test-jwt-secret-at-least-32-characters-long")
	accountID := uuid.New()

	token, err := svc.SignToken(accountID, "+15551234567", 3)
	require.NoError(t, err)

	claims, err := svc.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, accountID, claims.AccountID)
	assert.Equal(t, "+15551234567", claims.Number)
	assert.Equal(t, 3, claims.DeviceID)
}

func TestJWTRejectsWrongSecret(t *testing.T) {
	signer := NewJWTService("secret-one-at-least-32-characters-long!")
	verifier := NewJWTService("secret-two-at-least-32-characters-long!")

	token, err := signer.SignToken(uuid.New(), "+15551234567", 1)
	require.NoError(t, err)

	_, err = verifier.VerifyToken(token)
	assert.Error(t, err)
}

func TestJWTRejectsGarbage(t *testing.T) {
	svc := NewJWTService("test-jwt-secret-at-least-32-characters-long")
	_, err := svc.VerifyToken("not-a-token")
	assert.Error(t, err)
}
