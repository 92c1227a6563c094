package auth

import (
	"context"
	"time"
)

// JWTService issues and validates the bearer tokens that identify the actor
// of an API request.
type JWTService interface {
	// GenerateToken creates a signed HS256 token whose subject is actor.
	GenerateToken(ctx context.Context, actor string) (string, error)

	// ValidateToken checks signature and time claims and returns the claims.
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Claims is the subset of registered claims the API relies on.
type Claims struct {
	Subject   string    `json:"sub,omitempty"`
	IssuedAt  time.Time `json:"iat,omitempty"`
	ExpiresAt time.Time `json:"exp,omitempty"`
	ID        string    `json:"jti,omitempty"`
}
