package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-testing"

func TestGenerateToken(t *testing.T) {
	t.Run("user token", func(t *testing.T) {
		token, err := GenerateToken(123, false, testSecret, 24)
		require.NoError(t, err)
		assert.NotEmpty(t, token)

		claims, err := ParseToken(token, testSecret)
		require.NoError(t, err)
		assert.Equal(t, int64(123), claims.UserID)
		assert.False(t, claims.IsAdmin)
	})

	t.Run("admin token", func(t *testing.T) {
		token, err := GenerateToken(7, true, testSecret, 1)
		require.NoError(t, err)

		claims, err := ParseToken(token, testSecret)
		require.NoError(t, err)
		assert.True(t, claims.IsAdmin)
		assert.True(t, claims.ExpiresAt.After(time.Now()))
	})

	t.Run("different users get different tokens", func(t *testing.T) {
		token1, err := GenerateToken(1, false, testSecret, 24)
		require.NoError(t, err)
		token2, err := GenerateToken(2, false, testSecret, 24)
		require.NoError(t, err)
		assert.NotEqual(t, token1, token2)
	})
}

func TestParseToken(t *testing.T) {
	t.Run("wrong secret", func(t *testing.T) {
		token, _ := GenerateToken(123, false, testSecret, 24)

		claims, err := ParseToken(token, "wrong-secret")
		assert.ErrorIs(t, err, ErrInvalidToken)
		assert.Nil(t, claims)
	})

	t.Run("garbage", func(t *testing.T) {
		for _, s := range []string{"", "not-a-jwt-at-all", "invalid.token.string"} {
			claims, err := ParseToken(s, testSecret)
			assert.ErrorIs(t, err, ErrInvalidToken)
			assert.Nil(t, claims)
		}
	})

	t.Run("expired", func(t *testing.T) {
		claims := Claims{
			UserID: 123,
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
				IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
			},
		}
		tokenString, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))

		result, err := ParseToken(tokenString, testSecret)
		assert.ErrorIs(t, err, ErrExpiredToken)
		assert.Nil(t, result)
	})

	t.Run("none algorithm rejected", func(t *testing.T) {
		claims := Claims{
			UserID:  1,
			IsAdmin: true,
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
		tokenString, _ := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)

		result, err := ParseToken(tokenString, testSecret)
		assert.ErrorIs(t, err, ErrInvalidToken)
		assert.Nil(t, result)
	})
}

func TestErrors(t *testing.T) {
	assert.Equal(t, "invalid token", ErrInvalidToken.Error())
	assert.Equal(t, "token has expired", ErrExpiredToken.Error())
}
