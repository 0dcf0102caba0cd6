package auth

import "github.com/golang-jwt/jwt/v5"

// SessionClaims is the identity carried by the session cookie or bearer token
// issued by the identity provider.
type SessionClaims struct {
	UserID       string `json:"user_id"`
	PrimaryEmail string `json:"primary_email,omitempty"`
	DisplayName  string `json:"display_name,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the request-scoped view of an authenticated user.
type Identity struct {
	UserID string
	Email  string
	Name   string
}
