package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "user-1",
		"email": "user@example.com",
		"role":  "admin",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestValidateJWT(t *testing.T) {
	SetSecret("test_secret")

	claims, err := ValidateJWT(signToken(t, "test_secret"))
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims["sub"])
	assert.Equal(t, "admin", claims["role"])

	_, err = ValidateJWT(signToken(t, "other_secret"))
	assert.Error(t, err)
}

func TestExtractClaims_BearerHeader(t *testing.T) {
	SetSecret("test_secret")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "test_secret"))

	claims, err := ExtractClaims(req)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.Equal(t, "admin", claims.Role)
}

func TestExtractClaims_Cookie(t *testing.T) {
	SetSecret("test_secret")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "accessToken", Value: signToken(t, "test_secret")})

	claims, err := ExtractClaims(req)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
}

func TestExtractClaims_NoToken(t *testing.T) {
	SetSecret("test_secret")

	_, err := ExtractClaims(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Error(t, err)
}
