package service

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/noah-isme/basic-school-api/internal/models"
	appErrors "github.com/noah-isme/basic-school-api/pkg/errors"
)

// AuthConfig defines how provider-issued access tokens are verified.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
	Audience  string
}

// AuthService verifies access tokens issued by the hosted auth provider.
// Sign-in, refresh and password flows live with the provider.
type AuthService struct {
	logger *zap.Logger
	config AuthConfig
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{logger: logger, config: config}
}

// ValidateToken parses and validates an access token returning the claims with
// UserID and Role resolved.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if s.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.Issuer))
	}
	if s.config.Audience != "" {
		opts = append(opts, jwt.WithAudience(s.config.Audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.JWTSecret), nil
	}, opts...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	if claims.Subject == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token has no subject")
	}
	claims.UserID = claims.Subject

	role, ok := resolveRole(claims)
	if !ok {
		s.logger.Info("token without school role", zap.String("user_id", claims.UserID))
		return nil, appErrors.Clone(appErrors.ErrForbidden, "account has no school role")
	}
	claims.Role = role
	return claims, nil
}

// resolveRole prefers the provider-managed app_metadata role and falls back to
// the top-level role claim when it names a school role.
func resolveRole(claims *models.JWTClaims) (models.UserRole, bool) {
	if role, ok := models.ParseUserRole(claims.AppMetadata.Role); ok {
		return role, true
	}
	return models.ParseUserRole(claims.ProviderRole)
}
