package models

import "github.com/golang-jwt/jwt/v5"

// AppMetadata is the provider-managed metadata block carried in access tokens.
type AppMetadata struct {
	Role string `json:"role,omitempty"`
}

// JWTClaims represents the payload of an access token issued by the auth provider.
// UserID and Role are derived after verification.
type JWTClaims struct {
	UserID       string      `json:"-"`
	Role         UserRole    `json:"-"`
	Email        string      `json:"email,omitempty"`
	ProviderRole string      `json:"role,omitempty"`
	AppMetadata  AppMetadata `json:"app_metadata"`
	jwt.RegisteredClaims
}
