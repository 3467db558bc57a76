package services_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtmpscout/internal/core/services"
)

func TestAuthService_RoundTrip(t *testing.T) {
	auth := services.NewAuthService("test-secret", time.Hour)

	token, err := auth.GenerateToken("operator")
	require.NoError(t, err)

	claims, err := auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "operator", claims.Operator)
	assert.Equal(t, "operator", claims.Subject)
}

func TestAuthService_WrongSecret(t *testing.T) {
	token, err := services.NewAuthService("secret-a", time.Hour).GenerateToken("operator")
	require.NoError(t, err)

	_, err = services.NewAuthService("secret-b", time.Hour).ValidateToken(token)
	assert.ErrorIs(t, err, services.ErrInvalidToken)
}

func TestAuthService_Expired(t *testing.T) {
	auth := services.NewAuthService("test-secret", -time.Minute)

	token, err := auth.GenerateToken("operator")
	require.NoError(t, err)

	_, err = auth.ValidateToken(token)
	assert.ErrorIs(t, err, services.ErrExpiredToken)
}

func TestAuthService_RejectsOtherAlgorithms(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Issuer: "rtmpscout"})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = services.NewAuthService("test-secret", time.Hour).ValidateToken(signed)
	assert.ErrorIs(t, err, services.ErrInvalidToken)
}

func TestAuthService_Garbage(t *testing.T) {
	_, err := services.NewAuthService("test-secret", time.Hour).ValidateToken("not-a-token")
	assert.ErrorIs(t, err, services.ErrInvalidToken)
}
