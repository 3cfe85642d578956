package token

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// sessionClaims are the claims Kratos puts into a tokenized session.
type sessionClaims struct {
	Sid string `json:"sid"`
	jwt.RegisteredClaims
}

// ExpiryFromJWT reads the exp claim of a tokenized session without verifying
// the signature. The backend verifies the token; the client only needs to know
// when to stop presenting it. Returns 0 when the token has no exp claim.
func ExpiryFromJWT(raw string) (int64, error) {
	parser := jwt.NewParser()

	claims := &sessionClaims{}
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return 0, fmt.Errorf("parse session token: %w", err)
	}

	if claims.ExpiresAt == nil {
		return 0, nil
	}
	return claims.ExpiresAt.Unix(), nil
}
