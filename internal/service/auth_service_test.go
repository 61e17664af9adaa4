package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/basic-school-api/internal/models"
	appErrors "github.com/noah-isme/basic-school-api/pkg/errors"
)

const testSecret = "test-secret"

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims models.JWTClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return signed
}

func baseClaims(role string) models.JWTClaims {
	now := time.Now()
	return models.JWTClaims{
		Email:        "head@school.test",
		ProviderRole: "authenticated",
		AppMetadata:  models.AppMetadata{Role: role},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    "https://auth.school.test",
			Audience:  jwt.ClaimStrings{"authenticated"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
}

func newTestAuthService() *AuthService {
	return NewAuthService(nil, AuthConfig{JWTSecret: testSecret, Issuer: "https://auth.school.test", Audience: "authenticated"})
}

func TestValidateTokenResolvesRole(t *testing.T) {
	svc := newTestAuthService()
	token := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), baseClaims("headteacher"))

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.RoleHeadteacher, claims.Role)
	assert.Equal(t, "head@school.test", claims.Email)
}

func TestValidateTokenFallsBackToProviderRole(t *testing.T) {
	svc := newTestAuthService()
	c := baseClaims("")
	c.ProviderRole = "TEACHER"
	claims, err := svc.ValidateToken(signToken(t, jwt.SigningMethodHS256, []byte(testSecret), c))
	require.NoError(t, err)
	assert.Equal(t, models.RoleTeacher, claims.Role)
}

func TestValidateTokenRejectsUnknownRole(t *testing.T) {
	svc := newTestAuthService()
	_, err := svc.ValidateToken(signToken(t, jwt.SigningMethodHS256, []byte(testSecret), baseClaims("")))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestValidateTokenRejectsBadTokens(t *testing.T) {
	svc := newTestAuthService()

	expired := baseClaims("ADMIN")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	wrongIssuer := baseClaims("ADMIN")
	wrongIssuer.Issuer = "https://evil.test"
	wrongAudience := baseClaims("ADMIN")
	wrongAudience.Audience = jwt.ClaimStrings{"anon"}
	noSubject := baseClaims("ADMIN")
	noSubject.Subject = ""

	cases := map[string]string{
		"garbage":        "not-a-token",
		"wrong secret":   signToken(t, jwt.SigningMethodHS256, []byte("other"), baseClaims("ADMIN")),
		"wrong method":   signToken(t, jwt.SigningMethodHS512, []byte(testSecret), baseClaims("ADMIN")),
		"expired":        signToken(t, jwt.SigningMethodHS256, []byte(testSecret), expired),
		"wrong issuer":   signToken(t, jwt.SigningMethodHS256, []byte(testSecret), wrongIssuer),
		"wrong audience": signToken(t, jwt.SigningMethodHS256, []byte(testSecret), wrongAudience),
		"no subject":     signToken(t, jwt.SigningMethodHS256, []byte(testSecret), noSubject),
	}
	for name, token := range cases {
		_, err := svc.ValidateToken(token)
		require.Error(t, err, name)
		assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code, name)
	}
}
