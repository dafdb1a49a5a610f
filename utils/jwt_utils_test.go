package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, method jwt.SigningMethod, claims jwt.MapClaims, key any) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestParseToken(t *testing.T) {
	secret := "customer-secret"

	id, err := ParseToken(sign(t, jwt.SigningMethodHS256, jwt.MapClaims{"user_id": 42}, []byte(secret)), secret)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	expired := sign(t, jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": 42,
		"exp":     time.Now().Add(-time.Minute).Unix(),
	}, []byte(secret))
	_, err = ParseToken(expired, secret)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseToken(sign(t, jwt.SigningMethodHS512, jwt.MapClaims{"user_id": 42}, []byte(secret)), secret)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseToken(sign(t, jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}, []byte(secret)), secret)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseToken("garbage", secret)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseToken("anything", "")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
