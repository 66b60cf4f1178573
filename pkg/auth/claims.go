package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Email  string
	Guest  bool
	JTI    string
}

// AccessTokenClaims represents the typed JWT issued to buyers.
type AccessTokenClaims struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	Guest  bool      `json:"guest,omitempty"`
	jwt.RegisteredClaims
}
